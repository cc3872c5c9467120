package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

type loginEnvelope struct {
	IsSuccess bool          `json:"isSuccess"`
	Data      *loginPayload `json:"data"`
}

type loginPayload struct {
	UserID        flexString `json:"userId"`
	FullName      string     `json:"fullName"`
	Role          string     `json:"role"`
	Email         string     `json:"email"`
	Token         string     `json:"token"`
	RefreshToken  string     `json:"refreshToken"`
	TokenExpireIn flexExpiry `json:"tokenExpireIn"`
	IDEmpresa     flexString `json:"idEmpresa"`
}

func (p *loginPayload) toLoginData(now time.Time) *LoginData {
	return &LoginData{
		UserID:       string(p.UserID),
		FullName:     p.FullName,
		Role:         p.Role,
		Email:        p.Email,
		Token:        p.Token,
		RefreshToken: p.RefreshToken,
		ExpiresAt:    p.TokenExpireIn.resolve(now),
		CompanyID:    string(p.IDEmpresa),
	}
}

// flexString accepts a JSON string or number; null stays empty.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = flexString(n.String())
	return nil
}

// maxTokenLifetime caps tokenExpireIn so the expiry can never overflow into
// the past.
const maxTokenLifetime = 366 * 24 * time.Hour

// flexExpiry accepts either a lifetime in seconds or an absolute timestamp.
type flexExpiry struct {
	seconds int64
	at      time.Time
}

func (f *flexExpiry) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = flexExpiry{}
		return nil
	}
	if data[0] != '"' {
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		secs, err := n.Int64()
		if err != nil {
			fl, ferr := n.Float64()
			if ferr != nil {
				return err
			}
			switch secs = int64(maxTokenLifetime / time.Second); {
			case fl <= 0:
				secs = 0
			case fl < float64(secs):
				secs = int64(fl)
			}
		}
		*f = flexExpiry{seconds: secs}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = flexExpiry{}
		return nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = flexExpiry{seconds: secs}
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.9999999", "2006-01-02T15:04:05"} {
		if at, err := time.Parse(layout, s); err == nil {
			*f = flexExpiry{at: at.UTC()}
			return nil
		}
	}
	return fmt.Errorf("unrecognised token expiry %q", s)
}

func (f flexExpiry) resolve(now time.Time) time.Time {
	switch {
	case !f.at.IsZero():
		return f.at
	case f.seconds > 0:
		lifetime := maxTokenLifetime
		if f.seconds < int64(maxTokenLifetime/time.Second) {
			lifetime = time.Duration(f.seconds) * time.Second
		}
		return now.Add(lifetime).UTC()
	default:
		return time.Time{}
	}
}
