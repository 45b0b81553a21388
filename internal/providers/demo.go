package providers

import (
	"strings"

	"github.com/google/uuid"
)

// DemoPrefix помечает токены, выданные без обращения к провайдеру
const DemoPrefix = "DEMO-"

func newDemoRef() string {
	return DemoPrefix + uuid.NewString()
}

// IsDemoRef - токен выдан в демо-режиме
func IsDemoRef(ref string) bool {
	return strings.HasPrefix(ref, DemoPrefix)
}

func demoResult(message string) *InitiateResult {
	return &InitiateResult{
		CorrelationRef: newDemoRef(),
		IsDemo:         true,
		Message:        message,
		Metadata:       []byte(`{"demo":true}`),
	}
}
