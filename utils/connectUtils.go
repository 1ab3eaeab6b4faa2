package utils

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
)

// Quit blocks until SIGINT or SIGTERM, then runs Close.
func Quit(serviceName string, Close func()) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)
	sig := <-quit
	logrus.WithField("signal", sig.String()).Infof("Closing %s", serviceName)
	Close()
}

// CloseQuietly runs Close and logs, rather than returns, its error.
func CloseQuietly(name string, Close func() error) {
	if err := Close(); err != nil {
		logrus.WithError(err).Warnf("closing %s", name)
	}
}
