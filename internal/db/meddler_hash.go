//nolint:dupl
package db

import (
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"
)

func init() {
	// Register custom meddler converter for common.Hash
	meddler.Register("hash", HashMeddler{})
}

// HashMeddler handles conversion between common.Hash and database string representation.
type HashMeddler struct{}

func (h HashMeddler) PreRead(fieldAddr interface{}) (scanTarget interface{}, err error) {
	return new(sql.NullString), nil
}

func (h HashMeddler) PostRead(fieldAddr, scanTarget interface{}) error {
	ns, ok := scanTarget.(*sql.NullString)
	if !ok {
		return fmt.Errorf("expected *sql.NullString, got %T", scanTarget)
	}

	ptr, ok := fieldAddr.(*common.Hash)
	if !ok {
		return fmt.Errorf("expected *common.Hash, got %T", fieldAddr)
	}

	if !ns.Valid {
		*ptr = common.Hash{}
		return nil
	}

	*ptr = common.HexToHash(ns.String)
	return nil
}

func (h HashMeddler) PreWrite(field interface{}) (saveValue interface{}, err error) {
	hash, ok := field.(common.Hash)
	if !ok {
		return nil, fmt.Errorf("expected common.Hash, got %T", field)
	}
	return hash.Hex(), nil
}
