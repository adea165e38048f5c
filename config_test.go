package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{port: 8000, maxRounds: 5, roundTimeout: time.Minute}, false},
		{"tls pair", Config{port: 8000, maxRounds: 5, tlsCert: "cert.pem", tlsKey: "key.pem"}, false},
		{"cert without key", Config{port: 8000, maxRounds: 5, tlsCert: "cert.pem"}, true},
		{"key without cert", Config{port: 8000, maxRounds: 5, tlsKey: "key.pem"}, true},
		{"port too low", Config{port: 0, maxRounds: 5}, true},
		{"port too high", Config{port: 65536, maxRounds: 5}, true},
		{"zero rounds", Config{port: 8000, maxRounds: 0}, true},
		{"negative round timeout", Config{port: 8000, maxRounds: 5, roundTimeout: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigScheme(t *testing.T) {
	assert.Equal(t, "http", (&Config{}).scheme())
	assert.Equal(t, "https", (&Config{tlsCert: "cert.pem", tlsKey: "key.pem"}).scheme())
}
