package driver

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rzbill/strand/internal/client"
	"github.com/rzbill/strand/internal/config"
)

// registration is the persisted record of one publication. Stored as JSON in
// the registry under reg/<registrationID> so a restarted driver can re-attach
// to the logs it created.
type registration struct {
	RegistrationID int64    `json:"registrationId"`
	Channel        string   `json:"channel"`
	StreamID       int32    `json:"streamId"`
	SessionID      int32    `json:"sessionId"`
	InitialTermID  int32    `json:"initialTermId"`
	LogFileName    string   `json:"logFileName"`
	LimitCounterID int32    `json:"limitCounterId"`
	Destinations   []string `json:"destinations,omitempty"`
}

// details converts the record into the answer handed to a conductor.
func (r registration) details(cfg config.Config) client.PublicationDetails {
	return client.PublicationDetails{
		RegistrationID:    r.RegistrationID,
		SessionID:         r.SessionID,
		StreamID:          r.StreamID,
		Channel:           r.Channel,
		LogFileName:       r.LogFileName,
		LimitCounterID:    r.LimitCounterID,
		ConnectionTimeout: time.Duration(cfg.ConnectionTimeoutMs) * time.Millisecond,
	}
}

func registrationKey(registrationID int64) []byte {
	return []byte(fmt.Sprintf("reg/%020d", registrationID))
}

func (d *Driver) saveRegistration(r registration) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return d.db.Set(registrationKey(r.RegistrationID), b)
}

func (d *Driver) deleteRegistration(registrationID int64) error {
	return d.db.Delete(registrationKey(registrationID))
}

func (d *Driver) loadRegistrations() ([]registration, error) {
	var out []registration
	var decodeErr error
	err := d.db.Scan([]byte("reg/"), func(key, value []byte) bool {
		var r registration
		if err := json.Unmarshal(value, &r); err != nil {
			decodeErr = fmt.Errorf("driver: decode registration %s: %w", key, err)
			return false
		}
		out = append(out, r)
		return true
	})
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return out, nil
}
