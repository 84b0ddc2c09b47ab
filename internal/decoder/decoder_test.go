package decoder

import (
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T){
		"decodes into default fields":               testDecodesDefaultFields,
		"decodes into custom fields":                testDecodesCustomFields,
		"marks absent inputs as null":               testAbsentInputsAreNull,
		"keeps empty input apart from absent input": testEmptyIsNotAbsent,
		"marks absent value as null":                testAbsentValue,
		"omits key when key field is not set":       testOmitsKey,
		"omits value when value field is not set":   testOmitsValue,
		"produces empty record without fields":      testNoFields,
		"accepts empty field names":                 testEmptyFieldName,
		"value wins when field names collide":       testCollidingFields,
		"replaces malformed utf-8":                  testMalformedInput,
		"replaces each ill-formed subsequence":      testReplacesEachIllFormedSubsequence,
		"decodes multi-byte utf-8":                  testMultiByteInput,
		"returns independent equal records":         testIdempotent,
	} {
		t.Run(scenario, fn)
	}
}

func testDecodesDefaultFields(t *testing.T) {
	d := NewDefaultKeyValueDecoder()

	record := d.Decode([]byte("order-1"), []byte(`{"total":12}`))

	require.Equal(t, Record{
		"key":   Field("order-1"),
		"value": Field(`{"total":12}`),
	}, record)
}

func testDecodesCustomFields(t *testing.T) {
	d := NewKeyValueDecoder(Config{KeyField: Field("k1"), ValueField: Field("v1")})

	record := d.Decode([]byte("a"), []byte("b"))

	require.Equal(t, Record{"k1": Field("a"), "v1": Field("b")}, record)
}

func testAbsentInputsAreNull(t *testing.T) {
	record := NewDefaultKeyValueDecoder().Decode(nil, nil)

	require.Len(t, record, 2)
	require.Contains(t, record, "key")
	require.Contains(t, record, "value")
	require.Nil(t, record["key"])
	require.Nil(t, record["value"])
}

func testEmptyIsNotAbsent(t *testing.T) {
	record := NewDefaultKeyValueDecoder().Decode([]byte{}, nil)

	value, present, found := record.Lookup("key")
	require.True(t, found)
	require.True(t, present)
	require.Equal(t, "", value)

	_, present, found = record.Lookup("value")
	require.True(t, found)
	require.False(t, present)

	_, present, found = record.Lookup("missing")
	require.False(t, found)
	require.False(t, present)
}

func testAbsentValue(t *testing.T) {
	record := NewDefaultKeyValueDecoder().Decode([]byte("id1"), nil)

	require.Equal(t, Record{"key": Field("id1"), "value": nil}, record)
}

func testOmitsKey(t *testing.T) {
	d := NewKeyValueDecoder(Config{ValueField: Field("value")})

	record := d.Decode([]byte("ignored"), []byte("payload"))

	require.Equal(t, Record{"value": Field("payload")}, record)
}

func testOmitsValue(t *testing.T) {
	d := NewKeyValueDecoder(Config{KeyField: Field("key")})

	record := d.Decode(nil, []byte("ignored"))

	require.Equal(t, Record{"key": nil}, record)
}

func testNoFields(t *testing.T) {
	record := NewKeyValueDecoder(Config{}).Decode([]byte("a"), []byte("b"))

	require.NotNil(t, record)
	require.Empty(t, record)
}

func testEmptyFieldName(t *testing.T) {
	d := NewKeyValueDecoder(Config{KeyField: Field(""), ValueField: Field("value")})

	record := d.Decode([]byte("a"), []byte("b"))

	require.Equal(t, Record{"": Field("a"), "value": Field("b")}, record)
}

func testCollidingFields(t *testing.T) {
	d := NewKeyValueDecoder(Config{KeyField: Field("f"), ValueField: Field("f")})

	record := d.Decode([]byte("from-key"), []byte("from-value"))

	require.Equal(t, Record{"f": Field("from-value")}, record)
}

func testMalformedInput(t *testing.T) {
	record := NewDefaultKeyValueDecoder().Decode([]byte{'a', 0xff, 0xfe, 'b'}, nil)

	value, present, _ := record.Lookup("key")
	require.True(t, present)
	require.True(t, utf8.ValidString(value))
	require.Contains(t, value, "\uFFFD")
	require.Equal(t, byte('a'), value[0])
	require.Equal(t, byte('b'), value[len(value)-1])
	require.Nil(t, record["value"])
}

func testReplacesEachIllFormedSubsequence(t *testing.T) {
	d := NewDefaultKeyValueDecoder()

	record := d.Decode([]byte{0xe2, 0x82, 0x41}, []byte{0xff, 0xfe})

	require.Equal(t, Record{
		"key":   Field("\uFFFDA"),
		"value": Field("\uFFFD\uFFFD"),
	}, record)
}

func testMultiByteInput(t *testing.T) {
	record := NewDefaultKeyValueDecoder().Decode([]byte("ключ"), []byte("値 🌍"))

	require.Equal(t, Record{"key": Field("ключ"), "value": Field("値 🌍")}, record)
}

func testIdempotent(t *testing.T) {
	d := NewDefaultKeyValueDecoder()

	first := d.Decode([]byte("k"), []byte("v"))
	second := d.Decode([]byte("k"), []byte("v"))
	require.Equal(t, first, second)

	*first["key"] = "changed"
	first["extra"] = nil
	require.Equal(t, "k", *second["key"])
	require.NotContains(t, second, "extra")
}

func TestConfigIsCopied(t *testing.T) {
	name := "key"
	config := Config{KeyField: &name}
	d := NewKeyValueDecoder(config)

	name = "changed"

	field, ok := d.KeyField()
	require.True(t, ok)
	require.Equal(t, "key", field)

	_, ok = d.ValueField()
	require.False(t, ok)
}

func TestProducedType(t *testing.T) {
	d := NewDefaultKeyValueDecoder()

	require.Equal(t, TypeStringStringMap, d.ProducedType())
	require.Equal(t, ProducedType, NewKeyValueDecoder(Config{}).ProducedType())
	require.Equal(t, "map<string,string>", ProducedType.String())
	require.Equal(t, "unknown", TypeUnknown.String())
}

func TestDecodeConcurrently(t *testing.T) {
	d := NewDefaultKeyValueDecoder()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				record := d.Decode([]byte("k"), []byte("v"))
				assert.Equal(t, "k", *record["key"])
				assert.Equal(t, "v", *record["value"])
			}
		}()
	}
	wg.Wait()
}
