// Package qrwifi renders network credentials as the WIFI: QR code payload
// phone cameras understand.
package qrwifi

import (
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/shazow/wifid/wifi"
)

// EscapeWifiString handles the special character escaping for SSID and Password.
func EscapeWifiString(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`;`, `\;`,
		`,`, `\,`,
		`:`, `\:`,
		`"`, `\"`,
	)
	return r.Replace(s)
}

// Payload builds the WIFI: string for a network. WEP passphrases are hashed
// first, since readers expect the key itself.
func Payload(essid, key string, keyType wifi.KeyType, hidden bool) (string, error) {
	var b strings.Builder
	b.WriteString("WIFI:S:")
	b.WriteString(EscapeWifiString(essid))
	b.WriteString(";")

	switch {
	case key == "" || keyType == wifi.KeyNone:
		b.WriteString("T:nopass;")
	case keyType == wifi.KeyWPAPassphrase:
		b.WriteString("T:WPA;P:")
		b.WriteString(EscapeWifiString(key))
		b.WriteString(";")
	default:
		if keyType == wifi.KeyPassphrase {
			hashed, err := wifi.HashKey(essid, key, keyType)
			if err != nil {
				return "", err
			}
			key = hashed
		}
		b.WriteString("T:WEP;P:")
		b.WriteString(EscapeWifiString(key))
		b.WriteString(";")
	}

	if hidden {
		b.WriteString("H:true;")
	}
	b.WriteString(";")
	return b.String(), nil
}

// GenerateWifiQRCode returns the QR code for a network as terminal text.
func GenerateWifiQRCode(essid, key string, keyType wifi.KeyType, hidden bool) (string, error) {
	payload, err := Payload(essid, key, keyType, hidden)
	if err != nil {
		return "", err
	}
	q, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return "", err
	}
	return q.ToSmallString(false), nil
}
