package util

import (
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/gorilla/websocket"
)

func TestIsHarmless(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, true},
		{"eof", io.EOF, true},
		{"wrapped eof", fmt.Errorf("read: %w", io.EOF), true},
		{"net closed", net.ErrClosed, true},
		{"op error closed", &net.OpError{Op: "read", Err: net.ErrClosed}, true},
		{"ws normal closure", &websocket.CloseError{Code: websocket.CloseNormalClosure}, true},
		{"ws going away", &websocket.CloseError{Code: websocket.CloseGoingAway}, true},
		{"ws abnormal", &websocket.CloseError{Code: websocket.CloseAbnormalClosure}, false},
		{"unexpected eof", io.ErrUnexpectedEOF, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsHarmless(tt.err); got != tt.want {
				t.Errorf("IsHarmless(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
