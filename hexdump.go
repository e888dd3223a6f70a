package rssl

import (
	"encoding/hex"
	"strings"
)

// BufferToHexDump formats data as offset, hex and printable columns.
func BufferToHexDump(data []byte) string {
	return hex.Dump(data)
}

// BufferToRawHexDump formats data as rows of 16 hex bytes grouped in pairs.
func BufferToRawHexDump(data []byte) string {
	var sb strings.Builder
	for i := 0; i < len(data); i += 16 {
		row := data[i:]
		if len(row) > 16 {
			row = row[:16]
		}
		for j := 0; j < len(row); j += 2 {
			if j > 0 {
				sb.WriteByte(' ')
			}
			end := j + 2
			if end > len(row) {
				end = len(row)
			}
			sb.WriteString(hex.EncodeToString(row[j:end]))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
