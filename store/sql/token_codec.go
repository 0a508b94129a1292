package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/goliatone/go-onetouch/core"
)

// tokenCodec seals provider tokens before they reach a table column.
type tokenCodec struct {
	secrets core.SecretProvider
}

func (c tokenCodec) seal(ctx context.Context, token *core.Token) ([]byte, error) {
	if token == nil || token.IsZero() {
		return nil, nil
	}
	if c.secrets == nil {
		return nil, fmt.Errorf("sqlstore: secret provider is required to persist tokens")
	}
	payload, err := json.Marshal(token)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: encode token: %w", err)
	}
	sealed, err := c.secrets.Encrypt(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: seal token: %w", err)
	}
	return sealed, nil
}

func (c tokenCodec) open(ctx context.Context, sealed []byte) (*core.Token, error) {
	if len(sealed) == 0 {
		return nil, nil
	}
	if c.secrets == nil {
		return nil, fmt.Errorf("sqlstore: secret provider is required to read tokens")
	}
	payload, err := c.secrets.Decrypt(ctx, sealed)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open token: %w", err)
	}
	var token core.Token
	if err := json.Unmarshal(payload, &token); err != nil {
		return nil, fmt.Errorf("sqlstore: decode token: %w", err)
	}
	return &token, nil
}
