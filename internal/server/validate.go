package server

import (
	"fmt"
	"strings"
)

const (
	maxRoutes      = 20000
	maxConfigBytes = 2 << 20
)

func validateGenerateRequest(req generateRequest) error {
	if len(req.Config) > maxConfigBytes {
		return fmt.Errorf("config must not exceed %d bytes", maxConfigBytes)
	}
	if len(req.Routes) > maxRoutes {
		return fmt.Errorf("at most %d routes are accepted", maxRoutes)
	}
	if req.Limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}
	if req.DenyStatus != 0 && (req.DenyStatus < 100 || req.DenyStatus > 599) {
		return fmt.Errorf("deny_status must be an HTTP status code")
	}
	if req.IncludePath != "" && (!strings.HasPrefix(req.IncludePath, "/") || strings.ContainsAny(req.IncludePath, " \t\n;{}\"'")) {
		return fmt.Errorf("include_path must be an absolute path without whitespace or nginx syntax")
	}
	return nil
}

func sanitizeLogInput(s string) string {
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\r", "")
	return s
}
