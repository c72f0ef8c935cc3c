package mms

import (
	"github.com/NamanBalaji/mmsdl/internal/errors"
	"github.com/NamanBalaji/mmsdl/pkg/asf"
	mmsPkg "github.com/NamanBalaji/mmsdl/pkg/mms"
)

// headerInfo is what a header unit tells us about the stream.
type headerInfo struct {
	totalPackets int64
	props        *asf.FileProperties
	err          error
}

func classify(u mmsPkg.DataUnit) mmsPkg.UnitKind {
	if u.IsHeader() {
		return mmsPkg.UnitHeader
	}

	return mmsPkg.UnitMedia
}

// inspectHeader reads the declared packet count from an ASF header. It never
// fails: an unreadable header, a missing file properties object or a
// broadcast stream all yield unknownCount.
func inspectHeader(data []byte) headerInfo {
	props, err := asf.ParseFileProperties(data)
	if err != nil {
		if errors.Is(err, asf.ErrNoFileProperties) {
			return headerInfo{totalPackets: unknownCount}
		}

		return headerInfo{totalPackets: unknownCount, err: errors.NewParseError(err, "asf header")}
	}

	count, ok := props.PacketCount()
	if !ok {
		return headerInfo{totalPackets: unknownCount, props: props}
	}

	return headerInfo{totalPackets: count, props: props}
}
