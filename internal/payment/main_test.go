package payment

import (
	"os"
	"testing"

	"coachbook/internal/logger"
)

func TestMain(m *testing.M) {
	logger.Init()

	code := m.Run()
	os.Exit(code)
}
