package server

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"
)

// DeviceCookie names the cookie that scopes saved code to one browser.
const DeviceCookie = "devlearn_device"

const deviceIDLen = 32

// deviceID returns the request's device id, or a fresh one with fresh set to true.
func deviceID(r *http.Request) (id string, fresh bool) {
	if c, err := r.Cookie(DeviceCookie); err == nil && validDeviceID(c.Value) {
		return c.Value, false
	}
	return randomID(), true
}

func randomID() string {
	var b [deviceIDLen / 2]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func validDeviceID(s string) bool {
	if len(s) != deviceIDLen {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func deviceCookie(id string) *http.Cookie {
	return &http.Cookie{
		Name:     DeviceCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
