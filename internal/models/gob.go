package models

import "encoding/gob"

func init() {
	// Register types with gob for BadgerDB serialization. Run options,
	// log event payloads and diff specs are interface-valued, and their
	// contents typically arrive via json.Unmarshal.
	gob.Register(map[string]interface{}{})
	gob.Register([]interface{}{})
	gob.Register([]map[string]interface{}{})
	gob.Register([]string{})
}
