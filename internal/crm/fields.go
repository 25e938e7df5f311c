package crm

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// fieldRegistry maps custom field keys to the store's field ids. The store
// only accepts ids on update, and reports values by id on read. The map is
// loaded once; concurrent first loads share one request.
type fieldRegistry struct {
	client *Client
	group  singleflight.Group

	mu     sync.RWMutex
	loaded bool
	byKey  map[string]string // short key -> id
	byID   map[string]string // id -> short key
}

type customFieldDef struct {
	ID       string `json:"id"`
	FieldKey string `json:"fieldKey"`
	Key      string `json:"key"`
	Name     string `json:"name"`
}

func newFieldRegistry(c *Client) *fieldRegistry {
	return &fieldRegistry{client: c, byKey: map[string]string{}, byID: map[string]string{}}
}

func (r *fieldRegistry) ensure(ctx context.Context) error {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if loaded {
		return nil
	}

	_, err, _ := r.group.Do("load", func() (interface{}, error) {
		var resp struct {
			CustomFields []customFieldDef `json:"customFields"`
		}
		path := "locations/" + r.client.locationID + "/customFields"
		if err := r.client.do(ctx, "GET", path, nil, nil, &resp); err != nil {
			return nil, err
		}

		byKey := make(map[string]string, len(resp.CustomFields))
		byID := make(map[string]string, len(resp.CustomFields))
		for _, def := range resp.CustomFields {
			key := def.FieldKey
			if key == "" {
				key = def.Key
			}
			if key == "" || def.ID == "" {
				continue
			}
			byKey[ShortKey(key)] = def.ID
			byID[def.ID] = ShortKey(key)
		}

		r.mu.Lock()
		r.byKey, r.byID, r.loaded = byKey, byID, true
		r.mu.Unlock()
		return nil, nil
	})
	return err
}

func (r *fieldRegistry) idFor(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[ShortKey(key)]
	return id, ok
}

func (r *fieldRegistry) keyFor(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.byID[id]
	return key, ok
}

// FieldID resolves a custom field key ("vapi_called" or
// "contact.vapi_called") to the store's field id.
func (c *Client) FieldID(ctx context.Context, key string) (string, bool, error) {
	if err := c.fields.ensure(ctx); err != nil {
		return "", false, err
	}
	id, ok := c.fields.idFor(key)
	return id, ok, nil
}

// buildFieldWrites converts key/value pairs into the store's write format,
// using field ids where known and the full key otherwise.
func (c *Client) buildFieldWrites(ctx context.Context, fields map[string]string) []customFieldWrite {
	if len(fields) == 0 {
		return nil
	}
	if err := c.fields.ensure(ctx); err != nil {
		c.log.Warn("custom field ids unavailable, writing by key", "error", err)
	}

	writes := make([]customFieldWrite, 0, len(fields))
	for key, value := range fields {
		if id, ok := c.fields.idFor(key); ok {
			writes = append(writes, customFieldWrite{ID: id, FieldValue: value})
			continue
		}
		writes = append(writes, customFieldWrite{Key: FullKey(key), FieldValue: value})
	}
	return writes
}

// decodeFields turns the store's custom field list into a short-key map.
func (c *Client) decodeFields(ctx context.Context, raw []customFieldDTO) map[string]string {
	out := make(map[string]string, len(raw))
	if len(raw) == 0 {
		return out
	}
	needsIDs := false
	for _, f := range raw {
		if f.Key == "" && f.FieldKey == "" {
			needsIDs = true
			break
		}
	}
	if needsIDs {
		if err := c.fields.ensure(ctx); err != nil {
			c.log.Warn("custom field ids unavailable, values keyed by id", "error", err)
		}
	}

	for _, f := range raw {
		key := f.FieldKey
		if key == "" {
			key = f.Key
		}
		if key == "" {
			if resolved, ok := c.fields.keyFor(f.ID); ok {
				key = resolved
			} else {
				key = f.ID
			}
		}
		if key == "" {
			continue
		}
		out[ShortKey(key)] = rawString(f.Value)
	}
	return out
}
