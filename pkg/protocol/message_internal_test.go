package protocol

import (
	"errors"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func TestConsumeTag_Mismatch(t *testing.T) {
	tests := []struct {
		name    string
		build   func() []byte
		num     protowire.Number
		typ     protowire.Type
		wantErr bool
	}{
		{
			name: "matching tag",
			build: func() []byte {
				return protowire.AppendTag(nil, fieldFirst, protowire.BytesType)
			},
			num:     fieldFirst,
			typ:     protowire.BytesType,
			wantErr: false,
		},
		{
			name: "wrong field number",
			build: func() []byte {
				return protowire.AppendTag(nil, fieldSecond, protowire.BytesType)
			},
			num:     fieldFirst,
			typ:     protowire.BytesType,
			wantErr: true,
		},
		{
			name: "wrong wire type",
			build: func() []byte {
				return protowire.AppendTag(nil, fieldFirst, protowire.VarintType)
			},
			num:     fieldFirst,
			typ:     protowire.BytesType,
			wantErr: true,
		},
		{
			name:    "empty input",
			build:   func() []byte { return nil },
			num:     fieldFirst,
			typ:     protowire.BytesType,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := consumeTag(tt.build(), tt.num, tt.typ)
			if (err != nil) != tt.wantErr {
				t.Errorf("consumeTag() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMalformed) {
				t.Errorf("consumeTag() error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestUnmarshalPeerInfo(t *testing.T) {
	entry := protowire.AppendTag(nil, peerFieldID, protowire.VarintType)
	entry = protowire.AppendVarint(entry, 5)
	entry = appendStringField(entry, peerFieldName, "carol")

	p, err := unmarshalPeerInfo(entry)
	if err != nil {
		t.Fatalf("unmarshalPeerInfo() error = %v", err)
	}
	if p.ID != 5 || p.Name != "carol" {
		t.Errorf("unmarshalPeerInfo() = %+v, want {ID:5 Name:carol}", p)
	}

	if _, err := unmarshalPeerInfo(append(entry, 0x00)); err == nil {
		t.Error("unmarshalPeerInfo() with trailing bytes expected an error")
	}
}
