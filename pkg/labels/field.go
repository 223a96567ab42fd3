// Package labels decodes the label field of node records.
//
// A node record stores its labels in a 40-bit field. Small label sets are
// packed inline into the field itself; larger ones spill into a dynamic label
// record and the field only points at it.
//
// Field layout:
//
//	bit  39      dynamic flag
//	bits 36..38  inline: number of labels (0..7)
//	bits 0..35   inline: labels packed with 36/n bits each, lowest label first
//	             dynamic: id of the dynamic label record
//
// Example:
//
//	field, ok := labels.Encode([]int64{1, 2})
//	// ok == true, field fits inline
//
//	ids, err := labels.Parse(field, nil, nil)
//	// ids == []int64{1, 2}
package labels

import (
	"errors"
	"fmt"
	"slices"

	"github.com/orneryd/nornicapply/pkg/command"
)

const (
	fieldBits   = 40
	dynamicBit  = uint64(1) << 39
	countShift  = 36
	countMask   = uint64(0x7)
	payloadBits = 36
	payloadMask = uint64(1)<<payloadBits - 1

	// MaxInlineLabels is the largest label set that may be packed inline.
	MaxInlineLabels = 7
)

// ErrMalformedLabelField is returned when a label field cannot be decoded.
var ErrMalformedLabelField = errors.New("malformed label field")

// DynamicLabelReader resolves dynamic label records to their label ids.
type DynamicLabelReader interface {
	DynamicLabels(recordID int64) ([]int64, error)
}

// Encode packs labels inline. It returns false when the set does not fit and
// must be stored in a dynamic label record instead.
func Encode(labels []int64) (uint64, bool) {
	n := len(labels)
	if n == 0 {
		return 0, true
	}
	if n > MaxInlineLabels {
		return 0, false
	}
	sorted := slices.Clone(labels)
	slices.Sort(sorted)

	bits := uint(payloadBits / n)
	limit := int64(1) << bits
	var payload uint64
	for i, label := range sorted {
		if label < 0 || label >= limit {
			return 0, false
		}
		payload |= uint64(label) << (uint(i) * bits)
	}
	return uint64(n)<<countShift | payload, true
}

// Dynamic returns a field pointing at the dynamic label record recordID.
func Dynamic(recordID int64) uint64 {
	return dynamicBit | uint64(recordID)&payloadMask
}

// IsDynamic reports whether the field points at a dynamic label record.
func IsDynamic(field uint64) bool {
	return field&dynamicBit != 0
}

// DynamicRecordID returns the dynamic label record a field points at, or
// false for inline fields.
func DynamicRecordID(field uint64) (int64, bool) {
	if !IsDynamic(field) {
		return 0, false
	}
	return int64(field & payloadMask), true
}

// Parse decodes a label field.
//
// For dynamic fields the labels carried with the record (loaded) are used when
// present, otherwise the dynamic record is read through reader. An empty label
// set decodes to nil.
func Parse(field uint64, loaded []int64, reader DynamicLabelReader) ([]int64, error) {
	if field>>fieldBits != 0 {
		return nil, fmt.Errorf("%w: %#x has bits above %d", ErrMalformedLabelField, field, fieldBits)
	}

	payload := field & payloadMask
	if IsDynamic(field) {
		recordID := int64(payload)
		if loaded != nil {
			return loaded, nil
		}
		if reader == nil {
			return nil, fmt.Errorf("%w: dynamic label record %d not loaded", ErrMalformedLabelField, recordID)
		}
		ids, err := reader.DynamicLabels(recordID)
		if err != nil {
			return nil, fmt.Errorf("%w: dynamic label record %d: %v", ErrMalformedLabelField, recordID, err)
		}
		return ids, nil
	}

	n := int((field >> countShift) & countMask)
	if n == 0 {
		if payload != 0 {
			return nil, fmt.Errorf("%w: %#x has no labels but a non-zero payload", ErrMalformedLabelField, field)
		}
		return nil, nil
	}

	bits := uint(payloadBits / n)
	mask := uint64(1)<<bits - 1
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = int64((payload >> (uint(i) * bits)) & mask)
	}
	return ids, nil
}

// ForRecord returns the labels of a node record. Records that are nil or not
// in use have no labels.
func ForRecord(record *command.NodeRecord, reader DynamicLabelReader) ([]int64, error) {
	if record == nil || !record.InUse {
		return nil, nil
	}
	ids, err := Parse(record.LabelField, record.DynamicLabels, reader)
	if err != nil {
		return nil, fmt.Errorf("node %d: %w", record.ID, err)
	}
	return ids, nil
}
