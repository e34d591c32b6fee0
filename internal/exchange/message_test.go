// ABOUTME: Tests for message headers and ContentAs conversions.
// ABOUTME: Covers string, bytes and etree element/document round-trips.

package exchange

import (
	"errors"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageHeaders(t *testing.T) {
	m := NewMessage(nil)
	assert.Equal(t, "", m.Header(HeaderCorrelationID))

	m.SetHeader(HeaderCorrelationID, "abc").SetHeader(HeaderOperation, "sayHello")
	assert.Equal(t, "abc", m.Header(HeaderCorrelationID))

	h := m.Headers()
	h[HeaderCorrelationID] = "mutated"
	assert.Equal(t, "abc", m.Header(HeaderCorrelationID), "Headers must return a copy")
}

func TestContentAs(t *testing.T) {
	const xml = `<test:sayHello xmlns:test="http://test.ws/"><arg0>Jimbo</arg0></test:sayHello>`

	t.Run("string to element", func(t *testing.T) {
		el, err := ContentAs[*etree.Element](NewMessage(xml))
		require.NoError(t, err)
		assert.Equal(t, "sayHello", el.Tag)
		assert.Equal(t, "http://test.ws/", el.NamespaceURI())
	})

	t.Run("document to string", func(t *testing.T) {
		doc := etree.NewDocument()
		require.NoError(t, doc.ReadFromString(xml))

		s, err := ContentAs[string](NewMessage(doc))
		require.NoError(t, err)
		assert.Contains(t, s, "<arg0>Jimbo</arg0>")
	})

	t.Run("bytes to document", func(t *testing.T) {
		doc, err := ContentAs[*etree.Document](NewMessage([]byte(xml)))
		require.NoError(t, err)
		require.NotNil(t, doc.Root())
		assert.Equal(t, "Jimbo", doc.Root().SelectElement("arg0").Text())
	})

	t.Run("error to string", func(t *testing.T) {
		s, err := ContentAs[string](NewMessage(errors.New("broken")))
		require.NoError(t, err)
		assert.Equal(t, "broken", s)
	})

	t.Run("exact type", func(t *testing.T) {
		n, err := ContentAs[int](NewMessage(42))
		require.NoError(t, err)
		assert.Equal(t, 42, n)
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := ContentAs[int](NewMessage("42"))
		assert.ErrorIs(t, err, ErrContentType)

		_, err = ContentAs[*etree.Element](NewMessage("not xml <"))
		assert.ErrorIs(t, err, ErrContentType)

		_, err = ContentAs[string](NewMessage(nil))
		assert.ErrorIs(t, err, ErrContentType)
	})
}
