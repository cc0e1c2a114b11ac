package hapstore

import (
	"sort"

	"github.com/brutella/hap"
	"github.com/rs/zerolog"
)

var (
	_ hap.Store = (*S3Store)(nil)
	_ hap.Store = (*Mirror)(nil)
)

// Mirror serves pairing data from a local store and mirrors writes to a
// remote one. Local misses fall back to the remote and are copied back.
type Mirror struct {
	local  hap.Store
	remote hap.Store
	log    zerolog.Logger
}

func NewMirror(local, remote hap.Store, logger zerolog.Logger) *Mirror {
	return &Mirror{local: local, remote: remote, log: logger}
}

func (m *Mirror) Set(key string, value []byte) error {
	if err := m.local.Set(key, value); err != nil {
		return err
	}
	if err := m.remote.Set(key, value); err != nil {
		m.log.Warn().Err(err).Str("key", key).Msg("hap store mirror write failed")
	}
	return nil
}

func (m *Mirror) Get(key string) ([]byte, error) {
	value, err := m.local.Get(key)
	if err == nil {
		return value, nil
	}
	value, remoteErr := m.remote.Get(key)
	if remoteErr != nil {
		return nil, err
	}
	if err := m.local.Set(key, value); err != nil {
		m.log.Warn().Err(err).Str("key", key).Msg("hap store restore failed")
	}
	return value, nil
}

func (m *Mirror) Delete(key string) error {
	if err := m.remote.Delete(key); err != nil {
		m.log.Warn().Err(err).Str("key", key).Msg("hap store mirror delete failed")
	}
	return m.local.Delete(key)
}

func (m *Mirror) KeysWithSuffix(suffix string) ([]string, error) {
	local, err := m.local.KeysWithSuffix(suffix)
	if err != nil {
		return nil, err
	}
	remote, err := m.remote.KeysWithSuffix(suffix)
	if err != nil {
		m.log.Warn().Err(err).Str("suffix", suffix).Msg("hap store mirror list failed")
		return local, nil
	}

	seen := make(map[string]bool, len(local)+len(remote))
	keys := make([]string, 0, len(local)+len(remote))
	for _, key := range append(local, remote...) {
		if seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}
