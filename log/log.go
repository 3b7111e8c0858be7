package log

import (
	"os"

	hclog "github.com/hashicorp/go-hclog"
)

var L hclog.Logger

func init() {
	L = hclog.New(&hclog.LoggerOptions{
		Name: "malta",
	})
	L.SetLevel(hclog.Info)

	if str := os.Getenv("TRACE"); str != "" {
		L.SetLevel(hclog.Trace)
	}
}

// Or returns l, falling back to the package logger when l is nil.
func Or(l hclog.Logger) hclog.Logger {
	if l == nil {
		return L
	}

	return l
}
