package browser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotHeadlines(t *testing.T) {
	snap, err := ParseSnapshot(`<div>
		<h1>  Spaced
		   out   heading </h1>
		<h2><span>Nested</span> <em>inline</em> markup here</h2>
		<h3><style>h3{}</style>0123456789</h3>
		<h3>héllo wörld</h3>
	</div>`, "")
	require.NoError(t, err)

	headlines, err := snap.Headlines("h1, h2, h3", 11)
	require.NoError(t, err)

	assert.Equal(t, []Headline{
		{Text: "Spaced out heading", Tag: "h1"},
		{Text: "Nested inline markup here", Tag: "h2"},
		{Text: "héllo wörld", Tag: "h3"},
	}, headlines)
}

func TestSnapshotHeadlinesEmpty(t *testing.T) {
	snap, err := ParseSnapshot("<p>nothing here</p>", "")
	require.NoError(t, err)

	headlines, err := snap.Headlines(DefaultHeadlineSelector, DefaultMinTextLength)
	require.NoError(t, err)
	assert.NotNil(t, headlines)
	assert.Empty(t, headlines)
}

func TestSnapshotInvalidSelector(t *testing.T) {
	snap, err := ParseSnapshot("<h1>x</h1>", "")
	require.NoError(t, err)

	_, err = snap.Headlines("h1[", 0)
	assert.True(t, errors.Is(err, ErrInvalidSelector))
	_, err = snap.Products(":nope(")
	assert.True(t, errors.Is(err, ErrInvalidSelector))
}

func TestSnapshotProductsWithoutBaseURL(t *testing.T) {
	snap, err := ParseSnapshot(`<div class="product"><a href="/p/1">one</a><img src=" "></div>`, "")
	require.NoError(t, err)

	products, err := snap.Products(DefaultProductSelector)
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.NotNil(t, products[0].Link)
	assert.Equal(t, "/p/1", *products[0].Link)
	assert.Nil(t, products[0].Image)
	assert.Equal(t, "Unknown", products[0].Name)
	assert.Equal(t, "N/A", products[0].Price)
}

func TestSnapshotProductsFieldSelectors(t *testing.T) {
	snap, err := ParseSnapshot(`
		<div class="product"><span class="name">Chair</span><span class="cost">$5</span></div>
		<div class="product"><h2>Heading only</h2><span data-price="7">$7</span></div>
		<div class="product"><span class="title">Stool</span><h3>Ignored</h3><span class="price">$3</span></div>`, "")
	require.NoError(t, err)

	products, err := snap.Products(DefaultProductSelector)
	require.NoError(t, err)
	assert.Equal(t, []Product{
		{Name: "Chair", Price: "$5"},
		{Name: "Unknown", Price: "N/A"},
		{Name: "Stool", Price: "$3"},
	}, products)
}
