package schema

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/danmuck/wpanctl/internal/protocol"
	"github.com/danmuck/wpanctl/internal/protocol/spinel"
	"github.com/danmuck/wpanctl/internal/testutil/testlog"
)

func TestLookupIsCaseInsensitive(t *testing.T) {
	testlog.Start(t)
	e, ok := Lookup("network:panid")
	if !ok {
		t.Fatalf("expected Network:PANID entry")
	}
	if e.Prop != spinel.PropMAC154PANID || e.Type != TypeUint16 || !e.Settable() {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if _, ok := Lookup("Network:Nope"); ok {
		t.Fatalf("unknown key resolved")
	}
}

func TestByPropResolvesNotificationKey(t *testing.T) {
	testlog.Start(t)
	e, ok := ByProp(spinel.PropPHYCCAThreshold)
	if !ok || e.Key != KeyNCPCCAThreshold {
		t.Fatalf("unexpected entry: %+v ok=%v", e, ok)
	}
	if !e.Setting {
		t.Fatalf("CCA threshold should be replayed after reset")
	}
}

func TestSettingEntriesCarryCapabilityGates(t *testing.T) {
	testlog.Start(t)
	sleepy, _ := Lookup(KeyNCPSleepyPollInterval)
	if sleepy.Capability != spinel.CapRoleSleepy {
		t.Fatalf("poll interval gate=%d", sleepy.Capability)
	}
	router, _ := Lookup(KeyThreadRouterRoleEnabled)
	if router.Capability != spinel.CapRoleRouter {
		t.Fatalf("router role gate=%d", router.Capability)
	}
	tx, _ := Lookup(KeyNCPTXPower)
	if tx.Capability != 0 {
		t.Fatalf("tx power should not be gated")
	}
}

func TestEncodeDecodeScalars(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		typ  Type
		in   protocol.Value
		wire []byte
	}{
		{TypeBool, protocol.Bool(true), []byte{0x01}},
		{TypeUint8, protocol.Uint(11), []byte{0x0B}},
		{TypeInt8, protocol.Int(-70), []byte{0xBA}},
		{TypeUint16, protocol.Uint(0xFACE), []byte{0xCE, 0xFA}},
		{TypeUint32, protocol.Uint(0x01020304), []byte{0x04, 0x03, 0x02, 0x01}},
		{TypePackedUint, protocol.Uint(300), []byte{0xAC, 0x02}},
		{TypeUTF8, protocol.String("TestNet"), []byte("TestNet\x00")},
		{TypeData, protocol.Data([]byte{0xDE, 0xAD}), []byte{0xDE, 0xAD}},
	}
	for _, tc := range cases {
		wire, err := Encode(tc.typ, tc.in)
		if err != nil {
			t.Fatalf("%s encode: %v", tc.typ, err)
		}
		if string(wire) != string(tc.wire) {
			t.Fatalf("%s wire: got=% x want=% x", tc.typ, wire, tc.wire)
		}
		got, err := Decode(tc.typ, wire)
		if err != nil {
			t.Fatalf("%s decode: %v", tc.typ, err)
		}
		if !got.Equal(tc.in) {
			t.Fatalf("%s value: got=%s want=%s", tc.typ, got, tc.in)
		}
	}
}

func TestEncodeAcceptsTextualInput(t *testing.T) {
	testlog.Start(t)
	wire, err := Encode(TypeUint16, protocol.String("0x1234"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if wire[0] != 0x34 || wire[1] != 0x12 {
		t.Fatalf("wire=% x", wire)
	}
	wire, err = Encode(TypeIPv6, protocol.String("fd00::1"))
	if err != nil {
		t.Fatalf("encode ipv6: %v", err)
	}
	v, _ := Decode(TypeIPv6, wire)
	if a, _ := v.AsAddr(); a != netip.MustParseAddr("fd00::1") {
		t.Fatalf("addr=%s", a)
	}
}

func TestEncodeRangeErrors(t *testing.T) {
	testlog.Start(t)
	if _, err := Encode(TypeUint8, protocol.Uint(256)); !errors.Is(err, protocol.ErrValueRange) {
		t.Fatalf("expected range error, got %v", err)
	}
	if _, err := Encode(TypeInt8, protocol.Int(-129)); !errors.Is(err, protocol.ErrValueRange) {
		t.Fatalf("expected range error, got %v", err)
	}
	if _, err := Encode(TypeEUI64, protocol.Data([]byte{1, 2, 3})); !errors.Is(err, protocol.ErrValueRange) {
		t.Fatalf("expected range error, got %v", err)
	}
}

func TestDecodeTruncatedPayload(t *testing.T) {
	testlog.Start(t)
	if _, err := Decode(TypeUint32, []byte{1, 2}); !errors.Is(err, spinel.ErrShort) {
		t.Fatalf("expected short read, got %v", err)
	}
}

func TestDecodePackedUintList(t *testing.T) {
	testlog.Start(t)
	v, err := Decode(TypePackedUintList, []byte{0x01, 0x30, 0xC0, 0x77})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	list, _ := v.AsList()
	if len(list) != 3 {
		t.Fatalf("list=%s", v)
	}
	if n, _ := list[2].AsUint(); n != 15296 {
		t.Fatalf("last cap=%d", n)
	}
}

func TestValidateSetRejectsReadOnlyAndUnknown(t *testing.T) {
	testlog.Start(t)
	_, _, err := ValidateSet(KeyNCPVersion, protocol.String("x"))
	var ve ValidationError
	if !errors.As(err, &ve) || ve.Reason != "read-only" {
		t.Fatalf("expected read-only, got %v", err)
	}
	_, _, err = ValidateSet("Bogus:Key", protocol.Uint(1))
	if !errors.As(err, &ve) || ve.Reason != "unknown key" {
		t.Fatalf("expected unknown key, got %v", err)
	}
	e, payload, err := ValidateSet(KeyNCPChannel, protocol.Uint(15))
	if err != nil {
		t.Fatalf("validate channel: %v", err)
	}
	if e.Prop != spinel.PropPHYChan || len(payload) != 1 || payload[0] != 15 {
		t.Fatalf("entry=%+v payload=% x", e, payload)
	}
}

func TestDecodePropUnknownProperty(t *testing.T) {
	testlog.Start(t)
	_, _, err := DecodeProp(0x7FFF, []byte{1})
	var ve ValidationError
	if !errors.As(err, &ve) || ve.Reason != "unknown property" {
		t.Fatalf("expected unknown property, got %v", err)
	}
}
