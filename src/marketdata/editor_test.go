package marketdata

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AldoManuel/juchifood/src/assets"
	"github.com/AldoManuel/juchifood/src/blobstore"
	"github.com/AldoManuel/juchifood/src/config"
	"github.com/AldoManuel/juchifood/src/db"
	"github.com/AldoManuel/juchifood/src/imaging"
	"github.com/AldoManuel/juchifood/src/locals3"
	"github.com/AldoManuel/juchifood/src/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	editor  *Editor
	records *MemRecords
	blobs   *blobstore.Client
}

// An editor backed by in-memory records and a real blob store client talking
// to a local S3 server.
func newTestEnv(t *testing.T) testEnv {
	t.Helper()

	s3Server, err := locals3.NewServer(t.TempDir())
	require.Nil(t, err)
	server := httptest.NewServer(s3Server)
	t.Cleanup(server.Close)

	blobs, err := blobstore.New(context.Background(), config.StorageConfig{
		Endpoint:      server.URL,
		Region:        "us-east-1",
		AccessKey:     "test",
		SecretKey:     "test",
		PublicBaseUrl: server.URL,
	})
	require.Nil(t, err)

	records := NewMemRecords()
	coordinator := assets.NewCoordinator(blobs, assets.Buckets{
		Profile: "profile-images",
		Product: "product-images",
	}, imaging.Policy{
		MaxBytes:     5242880,
		AllowedTypes: []string{"image/jpeg", "image/jpg", "image/png", "image/webp"},
	})

	return testEnv{
		editor:  NewEditor(records, coordinator),
		records: records,
		blobs:   blobs,
	}
}

func exists(t *testing.T, url string) bool {
	t.Helper()
	res, err := http.Get(url)
	require.Nil(t, err)
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)
	return res.StatusCode == http.StatusOK
}

func pngFile(t *testing.T, name string, w, h int) models.ImageAsset {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), uint8(x ^ y), 255})
		}
	}
	var buf bytes.Buffer
	require.Nil(t, png.Encode(&buf, img))
	return models.ImageAsset{
		Filename: name,
		MimeType: "image/png",
		ByteSize: int64(buf.Len()),
		Width:    w,
		Height:   h,
		Content:  buf.Bytes(),
	}
}

func registerTestVendor(t *testing.T, e *Editor, email, location string) *models.Vendor {
	t.Helper()
	v, err := e.RegisterVendor(context.Background(), RegisterInput{
		Email:       email,
		Password:    "secreto",
		Name:        "Tacos Don Pepe",
		Description: "Los mejores tacos del campus",
		Location:    location,
	})
	require.Nil(t, err)
	return v
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	v := registerTestVendor(t, env.editor, "  Pepe@Example.com ", "DACyTI")
	assert.Equal(t, "pepe@example.com", v.Email)
	assert.NotEqual(t, "secreto", v.Password)

	got, err := env.editor.Login(ctx, "pepe@example.com", "secreto")
	require.Nil(t, err)
	assert.Equal(t, v.ID, got.ID)

	_, err = env.editor.Login(ctx, "pepe@example.com", "wrong!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.editor.Login(ctx, "nobody@example.com", "secreto")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.editor.RegisterVendor(ctx, RegisterInput{
		Email: "pepe@example.com", Password: "secreto", Name: "x", Description: "y", Location: "DAIA",
	})
	assert.ErrorIs(t, err, ErrEmailTaken)

	bad := map[string]RegisterInput{
		"email":       {Email: "not-an-email", Password: "secreto", Name: "a", Description: "b", Location: "DAIA"},
		"password":    {Email: "a@b.com", Password: "123", Name: "a", Description: "b", Location: "DAIA"},
		"name":        {Email: "a@b.com", Password: "secreto", Name: " ", Description: "b", Location: "DAIA"},
		"description": {Email: "a@b.com", Password: "secreto", Name: "a", Description: "", Location: "DAIA"},
		"location":    {Email: "a@b.com", Password: "secreto", Name: "a", Description: "b", Location: "Luna"},
	}
	for field, in := range bad {
		_, err := env.editor.RegisterVendor(ctx, in)
		var inputErr *InputError
		if assert.ErrorAs(t, err, &inputErr, "%+v", in) {
			assert.Equal(t, field, inputErr.Field)
			assert.NotEmpty(t, inputErr.Message)
		}
	}
}

func TestUpdatesFollowCreationRules(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	v := registerTestVendor(t, env.editor, "a@example.com", "DAIA")
	p, err := env.editor.CreateProduct(ctx, v.ID, ProductInput{Name: "Agua", Price: 15, Description: "De jamaica"}, nil)
	require.Nil(t, err)

	blank := "   "
	nan := math.NaN()
	inf := math.Inf(1)

	profileUpdates := map[string]models.VendorUpdate{
		"name":        {Name: &blank},
		"description": {Description: &blank},
	}
	for field, upd := range profileUpdates {
		_, err := env.editor.UpdateProfile(ctx, v.ID, upd)
		var inputErr *InputError
		if assert.ErrorAs(t, err, &inputErr, field) {
			assert.Equal(t, field, inputErr.Field)
		}
	}

	productUpdates := map[string]models.ProductUpdate{
		"name":        {Name: &blank},
		"description": {Description: &blank},
		"price":       {Price: &nan},
	}
	for field, upd := range productUpdates {
		_, err := env.editor.UpdateProduct(ctx, v.ID, p.ID, upd)
		var inputErr *InputError
		if assert.ErrorAs(t, err, &inputErr, field) {
			assert.Equal(t, field, inputErr.Field)
		}
	}
	_, err = env.editor.CreateProduct(ctx, v.ID, ProductInput{Name: "Agua", Price: inf, Description: "x"}, nil)
	var inputErr *InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "price", inputErr.Field)

	// Nothing above changed the stored records.
	gotVendor, err := env.editor.GetVendor(ctx, v.ID)
	require.Nil(t, err)
	assert.Equal(t, "Los mejores tacos del campus", gotVendor.Description)
	gotProduct, err := env.records.GetProduct(ctx, p.ID)
	require.Nil(t, err)
	assert.Equal(t, "De jamaica", gotProduct.Description)

	description := "  Agua fresca de jamaica "
	updated, err := env.editor.UpdateProduct(ctx, v.ID, p.ID, models.ProductUpdate{Description: &description})
	require.Nil(t, err)
	assert.Equal(t, "Agua fresca de jamaica", updated.Description)
}

func TestReplaceProfileImage(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	v := registerTestVendor(t, env.editor, "a@example.com", "DAIA")

	withA, err := env.editor.SetVendorImage(ctx, v.ID, pngFile(t, "a.png", 600, 300))
	require.Nil(t, err)
	urlA := withA.ProfileImageURL()
	require.NotEmpty(t, urlA)
	assert.True(t, exists(t, urlA))

	bucket, path, err := env.blobs.ParseURL(urlA)
	require.Nil(t, err)
	assert.Equal(t, "profile-images", bucket)
	assert.Regexp(t, "^profile-"+v.ID.String()+"-", path)

	withB, err := env.editor.SetVendorImage(ctx, v.ID, pngFile(t, "b.png", 100, 100))
	require.Nil(t, err)
	urlB := withB.ProfileImageURL()
	assert.NotEqual(t, urlA, urlB)

	stored, err := env.records.GetVendor(ctx, v.ID)
	require.Nil(t, err)
	assert.Equal(t, urlB, stored.ProfileImageURL())
	assert.True(t, exists(t, urlB))
	assert.False(t, exists(t, urlA), "the replaced image should be deleted")

	// A second delete of A only soft-fails.
	bucket, path, err = env.blobs.ParseURL(urlA)
	require.Nil(t, err)
	assert.True(t, blobstore.IsDeleteNotFound(env.blobs.Delete(ctx, bucket, path)))

	removed, err := env.editor.RemoveVendorImage(ctx, v.ID)
	require.Nil(t, err)
	assert.Nil(t, removed.ProfileImage)
	assert.False(t, exists(t, urlB))
}

func TestFailedReplacementKeepsOldImage(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	v := registerTestVendor(t, env.editor, "a@example.com", "DAIA")

	withA, err := env.editor.SetVendorImage(ctx, v.ID, pngFile(t, "a.png", 50, 50))
	require.Nil(t, err)
	urlA := withA.ProfileImageURL()

	t.Run("validation failure", func(t *testing.T) {
		_, err := env.editor.SetVendorImage(ctx, v.ID, models.ImageAsset{
			Filename: "big.png",
			MimeType: "image/png",
			ByteSize: 6 * 1024 * 1024,
			Content:  make([]byte, 10),
		})
		var verr *imaging.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, imaging.TooLarge, verr.Reason)
	})

	t.Run("record write failure", func(t *testing.T) {
		env.records.setImageErr = errors.New("database is down")
		defer func() { env.records.setImageErr = nil }()

		_, err := env.editor.SetVendorImage(ctx, v.ID, pngFile(t, "b.png", 50, 50))
		assert.NotNil(t, err)
	})

	stored, err := env.records.GetVendor(ctx, v.ID)
	require.Nil(t, err)
	assert.Equal(t, urlA, stored.ProfileImageURL())
	assert.True(t, exists(t, urlA))
}

func TestProductImages(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	owner := registerTestVendor(t, env.editor, "owner@example.com", "DACB")
	other := registerTestVendor(t, env.editor, "other@example.com", "DACB")

	img := pngFile(t, "torta.png", 1200, 600)
	p, err := env.editor.CreateProduct(ctx, owner.ID, ProductInput{
		Name:        "Torta de milanesa",
		Price:       55,
		Description: "Con aguacate",
	}, &img)
	require.Nil(t, err)
	firstURL := p.ImageURLString()
	require.NotEmpty(t, firstURL)

	bucket, path, err := env.blobs.ParseURL(firstURL)
	require.Nil(t, err)
	assert.Equal(t, "product-images", bucket)
	assert.Regexp(t, "^product-"+owner.ID.String()+"-.*\\.png$", path)

	res, err := http.Get(firstURL)
	require.Nil(t, err)
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	require.Nil(t, err)
	w, h := imaging.Dimensions(body)
	assert.Equal(t, 800, w)
	assert.Equal(t, 400, h)
	assert.Equal(t, "image/jpeg", res.Header.Get("Content-Type"))

	t.Run("other vendors cannot touch it", func(t *testing.T) {
		_, err := env.editor.SetProductImage(ctx, other.ID, p.ID, pngFile(t, "x.png", 10, 10))
		assert.ErrorIs(t, err, ErrNotOwner)
		_, err = env.editor.UpdateProduct(ctx, other.ID, p.ID, models.ProductUpdate{})
		assert.ErrorIs(t, err, ErrNotOwner)
		assert.ErrorIs(t, env.editor.DeleteProduct(ctx, other.ID, p.ID), ErrNotOwner)
		assert.True(t, exists(t, firstURL))
	})

	t.Run("replace", func(t *testing.T) {
		updated, err := env.editor.SetProductImage(ctx, owner.ID, p.ID, pngFile(t, "torta2.png", 300, 300))
		require.Nil(t, err)
		assert.NotEqual(t, firstURL, updated.ImageURLString())
		assert.True(t, exists(t, updated.ImageURLString()))
		assert.False(t, exists(t, firstURL))
	})

	t.Run("update fields", func(t *testing.T) {
		name := "Torta cubana"
		price := 70.5
		updated, err := env.editor.UpdateProduct(ctx, owner.ID, p.ID, models.ProductUpdate{Name: &name, Price: &price})
		require.Nil(t, err)
		assert.Equal(t, "Torta cubana", updated.Name)
		assert.Equal(t, 70.5, updated.Price)
		assert.Equal(t, "Con aguacate", updated.Description)

		negative := -1.0
		_, err = env.editor.UpdateProduct(ctx, owner.ID, p.ID, models.ProductUpdate{Price: &negative})
		var inputErr *InputError
		assert.ErrorAs(t, err, &inputErr)
	})

	t.Run("delete", func(t *testing.T) {
		current, err := env.records.GetProduct(ctx, p.ID)
		require.Nil(t, err)
		url := current.ImageURLString()

		require.Nil(t, env.editor.DeleteProduct(ctx, owner.ID, p.ID))
		assert.False(t, exists(t, url))
		_, err = env.records.GetProduct(ctx, p.ID)
		assert.ErrorIs(t, err, db.NotFound)
	})
}

func TestCreateProductWithoutImage(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	v := registerTestVendor(t, env.editor, "a@example.com", "Externo")

	p, err := env.editor.CreateProduct(ctx, v.ID, ProductInput{Name: " Agua ", Price: 15, Description: "De jamaica"}, nil)
	require.Nil(t, err)
	assert.Equal(t, "Agua", p.Name)
	assert.Nil(t, p.ImageURL)

	_, err = env.editor.CreateProduct(ctx, v.ID, ProductInput{Name: "", Price: 15, Description: "x"}, nil)
	var inputErr *InputError
	assert.ErrorAs(t, err, &inputErr)

	// A bad image stops the product from being created at all.
	gif := models.ImageAsset{Filename: "a.gif", MimeType: "image/gif", ByteSize: 10, Content: make([]byte, 10)}
	_, err = env.editor.CreateProduct(ctx, v.ID, ProductInput{Name: "Elote", Price: 20, Description: "Con chile"}, &gif)
	var verr *imaging.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, imaging.UnsupportedType, verr.Reason)

	products, err := env.editor.ListVendorProducts(ctx, v.ID)
	require.Nil(t, err)
	assert.Len(t, products, 1)
}

func TestDeleteVendorCascade(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	v := registerTestVendor(t, env.editor, "a@example.com", "DAIA")
	keep := registerTestVendor(t, env.editor, "b@example.com", "DAIA")

	withImage, err := env.editor.SetVendorImage(ctx, v.ID, pngFile(t, "me.png", 40, 40))
	require.Nil(t, err)

	var productURLs []string
	for _, name := range []string{"Tamal", "Atole"} {
		img := pngFile(t, name+".png", 40, 40)
		p, err := env.editor.CreateProduct(ctx, v.ID, ProductInput{Name: name, Price: 20, Description: "Caliente"}, &img)
		require.Nil(t, err)
		productURLs = append(productURLs, p.ImageURLString())
	}
	_, err = env.editor.CreateProduct(ctx, v.ID, ProductInput{Name: "Pan", Price: 10, Description: "Dulce"}, nil)
	require.Nil(t, err)
	_, err = env.editor.CreateProduct(ctx, keep.ID, ProductInput{Name: "Café", Price: 25, Description: "Americano"}, nil)
	require.Nil(t, err)

	require.Nil(t, env.editor.DeleteVendor(ctx, v.ID))

	assert.False(t, exists(t, withImage.ProfileImageURL()))
	for _, url := range productURLs {
		assert.False(t, exists(t, url))
	}
	_, err = env.editor.GetVendor(ctx, v.ID)
	assert.ErrorIs(t, err, db.NotFound)

	all, err := env.editor.ListProducts(ctx, "")
	require.Nil(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, keep.ID, all[0].Vendor.ID)
}

func TestListings(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	a := registerTestVendor(t, env.editor, "a@example.com", "DAIA")
	b := registerTestVendor(t, env.editor, "b@example.com", "DACB")

	_, err := env.editor.CreateProduct(ctx, a.ID, ProductInput{Name: "Uno", Price: 1, Description: "x"}, nil)
	require.Nil(t, err)
	_, err = env.editor.CreateProduct(ctx, b.ID, ProductInput{Name: "Dos", Price: 2, Description: "x"}, nil)
	require.Nil(t, err)
	_, err = env.editor.CreateProduct(ctx, a.ID, ProductInput{Name: "Tres", Price: 3, Description: "x"}, nil)
	require.Nil(t, err)

	vendors, err := env.editor.ListVendors(ctx, "DAIA")
	require.Nil(t, err)
	require.Len(t, vendors, 1)
	assert.Equal(t, a.ID, vendors[0].ID)

	vendors, err = env.editor.ListVendors(ctx, "")
	require.Nil(t, err)
	require.Len(t, vendors, 2)
	assert.Equal(t, b.ID, vendors[0].ID, "newest first")

	products, err := env.editor.ListProducts(ctx, "DAIA")
	require.Nil(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Tres", products[0].Product.Name)
	assert.Equal(t, "Uno", products[1].Product.Name)
	assert.Equal(t, "DAIA", products[0].Vendor.Location)

	location := "Externo"
	moved, err := env.editor.UpdateProfile(ctx, a.ID, models.VendorUpdate{Location: &location})
	require.Nil(t, err)
	assert.Equal(t, "Externo", moved.Location)

	bogus := "Marte"
	_, err = env.editor.UpdateProfile(ctx, a.ID, models.VendorUpdate{Location: &bogus})
	var inputErr *InputError
	assert.ErrorAs(t, err, &inputErr)
}
