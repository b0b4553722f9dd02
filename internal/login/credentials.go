package login

import (
	"fmt"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/autologin-cli/internal/config"
)

// ParseCredentials reads a JSON object of identity -> secret. Key order is
// the processing order. A repeated identity keeps its first position and
// its last secret. Any malformed input is a CONFIG_ERROR fault.
func ParseCredentials(raw string) ([]Credential, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, configFault("accounts configuration is empty")
	}

	iter := jsoniter.ParseString(jsoniter.ConfigCompatibleWithStandardLibrary, raw)
	if next := iter.WhatIsNext(); next != jsoniter.ObjectValue {
		return nil, configFault(fmt.Sprintf("accounts must be a JSON object, got %s", valueKind(next)))
	}

	var (
		creds []Credential
		index = map[string]int{}
		bad   error
	)
	complete := iter.ReadObjectCB(func(it *jsoniter.Iterator, identity string) bool {
		if it.WhatIsNext() != jsoniter.StringValue {
			bad = fmt.Errorf("secret for account %s is not a string", MaskIdentity(identity))
			return false
		}
		secret := it.ReadString()
		if strings.TrimSpace(identity) == "" {
			bad = fmt.Errorf("account identity must not be empty")
			return false
		}
		if i, seen := index[identity]; seen {
			creds[i].Secret = secret
			return true
		}
		index[identity] = len(creds)
		creds = append(creds, Credential{Identity: identity, Secret: secret})
		return true
	})
	if bad != nil {
		return nil, configFault(bad.Error())
	}
	if !complete || (iter.Error != nil && iter.Error != io.EOF) {
		// The iterator error quotes the input, secrets included.
		return nil, configFault("accounts is not valid JSON")
	}

	// Anything after the closing brace is malformed input too.
	if iter.WhatIsNext() != jsoniter.InvalidValue || iter.Error != io.EOF {
		return nil, configFault("accounts has trailing data after the JSON object")
	}
	if len(creds) == 0 {
		return nil, configFault("accounts must contain at least one entry")
	}
	return creds, nil
}

func configFault(msg string) *Fault {
	return NewFault(CodeConfig, "", msg, config.ErrInvalidAccounts)
}

func valueKind(t jsoniter.ValueType) string {
	switch t {
	case jsoniter.NilValue:
		return "null"
	case jsoniter.StringValue:
		return "a string"
	case jsoniter.NumberValue:
		return "a number"
	case jsoniter.BoolValue:
		return "a boolean"
	case jsoniter.ArrayValue:
		return "an array"
	default:
		return "invalid JSON"
	}
}
