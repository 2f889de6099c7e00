package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsInternalRequest(t *testing.T) {
	tests := []struct {
		name string
		host string
		want bool
	}{
		{name: "localhost", host: "localhost", want: true},
		{name: "loopback v4", host: "127.0.0.1", want: true},
		{name: "loopback v4 with port", host: "127.0.0.1:54321", want: true},
		{name: "loopback v6", host: "::1", want: true},
		{name: "private 10/8", host: "10.1.2.3", want: true},
		{name: "private 172.16/12", host: "172.16.0.1", want: true},
		{name: "private 192.168/16", host: "192.168.1.100", want: true},
		{name: "public address", host: "203.0.113.7", want: false},
		{name: "public test-net", host: "192.0.2.1:1234", want: false},
		{name: "hostname", host: "example.com", want: false},
		{name: "empty", host: "", want: false},
		{name: "garbage", host: "not an address", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isInternalRequest(tt.host))
		})
	}
}
