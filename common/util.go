package common

import (
	"fmt"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// GetSortingCondition maps an API sort parameter ("-created_at" style) onto
// a validated column and direction for the execution history queries.
func GetSortingCondition(sort string) (string, string) {
	// Default sorting column
	orderBy := "created_at"
	orderDirection := "ASC"

	isDescending := strings.HasPrefix(sort, "-")
	columnName := strings.TrimPrefix(sort, "-")

	// Ensure orderBy is a valid column name (prevent SQL injection)
	allowedColumns := map[string]bool{"created_at": true, "executed_at": true, "requested": true}
	if allowedColumns[columnName] {
		orderBy = columnName
	}

	if isDescending {
		orderDirection = "DESC"
	}

	return orderBy, orderDirection
}

// ParseAddress validates and normalizes a hex-encoded address parameter.
func ParseAddress(s string) (ethcommon.Address, error) {
	if !ethcommon.IsHexAddress(s) {
		return ethcommon.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return ethcommon.HexToAddress(s), nil
}
