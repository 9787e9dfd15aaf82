package marketdata

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AldoManuel/juchifood/src/db"
	"github.com/AldoManuel/juchifood/src/models"
	"github.com/AldoManuel/juchifood/src/oops"
	"github.com/google/uuid"
)

// Records kept in memory, for running without Postgres. Lists are ordered
// newest first like PgRecords. Emails are compared as given, so callers must
// lowercase them first, as Editor does.
type MemRecords struct {
	mu       sync.Mutex
	vendors  map[uuid.UUID]models.Vendor
	products map[uuid.UUID]models.Product
	clock    time.Time

	// Returned by the image setters when non-nil.
	setImageErr error
}

var _ Records = &MemRecords{}

func NewMemRecords() *MemRecords {
	return &MemRecords{
		vendors:  make(map[uuid.UUID]models.Vendor),
		products: make(map[uuid.UUID]models.Product),
	}
}

// Creation times strictly increase so newest-first ordering is stable.
func (m *MemRecords) tick() time.Time {
	now := time.Now().UTC()
	if !now.After(m.clock) {
		now = m.clock.Add(time.Microsecond)
	}
	m.clock = now
	return now
}

func (m *MemRecords) GetVendor(ctx context.Context, id uuid.UUID) (*models.Vendor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vendors[id]
	if !ok {
		return nil, db.NotFound
	}
	return &v, nil
}

func (m *MemRecords) GetVendorByEmail(ctx context.Context, email string) (*models.Vendor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.vendors {
		if v.Email == email {
			return &v, nil
		}
	}
	return nil, db.NotFound
}

func (m *MemRecords) ListVendors(ctx context.Context, location string) ([]*models.Vendor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []*models.Vendor
	for _, v := range m.vendors {
		if location == "" || v.Location == location {
			v := v
			res = append(res, &v)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (m *MemRecords) InsertVendor(ctx context.Context, v models.Vendor) (*models.Vendor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.vendors {
		if existing.Email == v.Email {
			return nil, ErrEmailTaken
		}
	}
	v.CreatedAt = m.tick()
	m.vendors[v.ID] = v
	return &v, nil
}

func (m *MemRecords) UpdateVendor(ctx context.Context, id uuid.UUID, upd models.VendorUpdate) (*models.Vendor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vendors[id]
	if !ok {
		return nil, db.NotFound
	}
	if upd.Name != nil {
		v.Name = *upd.Name
	}
	if upd.Description != nil {
		v.Description = *upd.Description
	}
	if upd.Location != nil {
		v.Location = *upd.Location
	}
	m.vendors[id] = v
	return &v, nil
}

func (m *MemRecords) SetVendorImage(ctx context.Context, id uuid.UUID, url *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setImageErr != nil {
		return m.setImageErr
	}
	v, ok := m.vendors[id]
	if !ok {
		return db.NotFound
	}
	v.ProfileImage = url
	m.vendors[id] = v
	return nil
}

func (m *MemRecords) DeleteVendor(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vendors[id]; !ok {
		return db.NotFound
	}
	delete(m.vendors, id)
	for pid, p := range m.products {
		if p.VendorID == id {
			delete(m.products, pid)
		}
	}
	return nil
}

func (m *MemRecords) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, db.NotFound
	}
	return &p, nil
}

func (m *MemRecords) ListProductsByVendor(ctx context.Context, vendorID uuid.UUID) ([]*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []*models.Product
	for _, p := range m.products {
		if p.VendorID == vendorID {
			p := p
			res = append(res, &p)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (m *MemRecords) ListProducts(ctx context.Context, location string) ([]*models.ProductAndVendor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []*models.ProductAndVendor
	for _, p := range m.products {
		v := m.vendors[p.VendorID]
		if location == "" || v.Location == location {
			res = append(res, &models.ProductAndVendor{Product: p, Vendor: v})
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Product.CreatedAt.After(res[j].Product.CreatedAt) })
	return res, nil
}

func (m *MemRecords) InsertProduct(ctx context.Context, p models.Product) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vendors[p.VendorID]; !ok {
		return nil, oops.New(nil, "vendor %s does not exist", p.VendorID)
	}
	p.CreatedAt = m.tick()
	m.products[p.ID] = p
	return &p, nil
}

func (m *MemRecords) UpdateProduct(ctx context.Context, id uuid.UUID, upd models.ProductUpdate) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, db.NotFound
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Price != nil {
		p.Price = *upd.Price
	}
	if upd.Description != nil {
		p.Description = *upd.Description
	}
	m.products[id] = p
	return &p, nil
}

func (m *MemRecords) SetProductImage(ctx context.Context, id uuid.UUID, url *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setImageErr != nil {
		return m.setImageErr
	}
	p, ok := m.products[id]
	if !ok {
		return db.NotFound
	}
	p.ImageURL = url
	m.products[id] = p
	return nil
}

func (m *MemRecords) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return db.NotFound
	}
	delete(m.products, id)
	return nil
}
