// Command operator-token prints a bearer token for the operator routes
// (saving probabilities and resetting winners).
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/logger"
	"github.com/joho/godotenv"

	"luckydraw/internal/middleware"
)

func main() {
	defer logger.Init("operator-token", false, false, io.Discard).Close()
	_ = godotenv.Load()

	subject := flag.String("subject", "operator", "token subject")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	token, err := middleware.IssueOperatorToken(os.Getenv("OPERATOR_SECRET"), *subject, *ttl)
	if err != nil {
		logger.Fatalf("Failed to issue token: %v (is OPERATOR_SECRET set?)", err)
	}
	fmt.Println(token)
}
