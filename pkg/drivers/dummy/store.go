package dummy

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	tunerBucket    = "tuner"
	settingsBucket = "settings"
	settingsKey    = "settings"

	defaultPower   = 100
	defaultAntenna = "1"
)

// Tuning is one tuner memory, recalled when the band is selected again.
type Tuning struct {
	NH  float64 `json:"nh"`
	PF  float64 `json:"pf"`
	SWR float64 `json:"swr"`
}

// Settings survive a memory reset.
type Settings struct {
	Power   float64 `json:"power"` // watts in operate
	Antenna string  `json:"antenna"`
}

type store struct {
	db     *bolt.DB
	logger log.FieldLogger
}

func newStore(db *bolt.DB, logger log.FieldLogger) (*store, error) {
	st := store{db: db, logger: logger}

	if err := st.setDefaults(); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *store) setDefaults() error {
	if _, err := s.Settings(); err != nil {
		s.logger.Infof("Setting default tuner settings")
		return s.SetSettings(Settings{
			Power:   defaultPower,
			Antenna: defaultAntenna,
		})
	}
	return nil
}

// SetSettings saves the settings as a json string in the database.
func (s *store) SetSettings(cfg Settings) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(settingsBucket))
		if err != nil {
			return err
		}

		value, _ := json.Marshal(cfg)
		return b.Put([]byte(settingsKey), value)
	})
}

func (s *store) Settings() (Settings, error) {
	var cfg Settings

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(settingsBucket))
		if b == nil {
			return fmt.Errorf("bucket %s not found", settingsBucket)
		}

		value := b.Get([]byte(settingsKey))
		if value == nil {
			return fmt.Errorf("key %s not found", settingsKey)
		}

		return json.Unmarshal(value, &cfg)
	})

	return cfg, err
}

// SetTuning stores the tuner memory of band, in MHz.
func (s *store) SetTuning(band int, t Tuning) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(tunerBucket))
		if err != nil {
			return err
		}

		value, _ := json.Marshal(t)
		return b.Put([]byte(strconv.Itoa(band)), value)
	})
}

// Tuning returns the memory of band; ok is false when there is none.
func (s *store) Tuning(band int) (t Tuning, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(tunerBucket))
		if b == nil {
			return nil
		}

		value := b.Get([]byte(strconv.Itoa(band)))
		if value == nil {
			return nil
		}

		ok = true
		return json.Unmarshal(value, &t)
	})
	return t, ok, err
}

// Count returns the number of bands with a memory.
func (s *store) Count() (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket([]byte(tunerBucket)); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n, err
}

// Clear erases every tuner memory.
func (s *store) Clear() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket([]byte(tunerBucket))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}
