package services

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"cart-hand/config"
	"cart-hand/extract"
	"cart-hand/models"
)

func testScrapeConfig() *config.Config {
	return &config.Config{
		SiteBaseURL:    "https://shop.example",
		SiteSearchPath: "/s/?q=%s",
	}
}

func newPersistTestService(t *testing.T) *ScrapeService {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Product{}))
	return &ScrapeService{DB: db, Logger: zap.NewNop()}
}

// Alle Dedup-Spalten belegt, damit der Unique-Index greift.
func collectedProduct(name string, price, mrp float64) extract.Product {
	return extract.Product{
		Name:          name,
		Price:         &price,
		OriginalPrice: &mrp,
		ImageURL:      "https://cdn.example/" + extract.Slugify(name) + ".jpg",
		ProductURL:    "https://shop.example/prn/" + extract.Slugify(name) + "/prid/1",
	}
}

func TestPersistCountsOnlyInsertedRows(t *testing.T) {
	svc := newPersistTestService(t)

	st := NewRunState(0)
	st.Add([]extract.Product{
		collectedProduct("Milk", 48, 55),
		collectedProduct("Bread", 30, 35),
	}, SourceClientState)

	saved := svc.persist(zap.NewNop(), st, "milk", "https://shop.example/s/?q=milk")
	assert.Equal(t, 2, saved)

	// Identischer Batch eines späteren Laufs: der Unique-Index verschluckt
	// alles, der Zähler meldet null neue Produkte.
	st2 := NewRunState(0)
	st2.Add([]extract.Product{
		collectedProduct("Milk", 48, 55),
		collectedProduct("Bread", 30, 35),
	}, SourceClientState)
	assert.Equal(t, 0, svc.persist(zap.NewNop(), st2, "milk", "https://shop.example/s/?q=milk"))

	// Gemischter Batch zählt nur die tatsächlich neuen Zeilen.
	st3 := NewRunState(0)
	st3.Add([]extract.Product{
		collectedProduct("Bread", 30, 35),
		collectedProduct("Eggs", 42, 42),
	}, SourceClientState)
	assert.Equal(t, 1, svc.persist(zap.NewNop(), st3, "bread", "https://shop.example/s/?q=bread"))

	var total int64
	require.NoError(t, svc.DB.Model(&models.Product{}).Count(&total).Error)
	assert.Equal(t, int64(3), total)
}

func TestResolveSeedKeywordAndOverride(t *testing.T) {
	svc := &ScrapeService{
		Config: testScrapeConfig(),
		Logger: zap.NewNop(),
	}

	req := ScrapeRequest{Keyword: " milk "}
	keyword, seed, err := svc.resolveSeed(&req)
	require.NoError(t, err)
	assert.Equal(t, "milk", keyword)
	assert.Equal(t, "https://shop.example/s/?q=milk", seed)

	req = ScrapeRequest{URLOverride: "https://shop.example/s/?q=bread&lat=12.9&lon=77.5"}
	keyword, seed, err = svc.resolveSeed(&req)
	require.NoError(t, err)
	assert.Equal(t, "bread", keyword)
	assert.Equal(t, "https://shop.example/s/?q=bread&lat=12.9&lon=77.5", seed)
	assert.Equal(t, "12.9", req.Lat)
	assert.Equal(t, "77.5", req.Lon)

	req = ScrapeRequest{URLOverride: "ftp://shop.example/s"}
	_, _, err = svc.resolveSeed(&req)
	assert.Error(t, err)

	req = ScrapeRequest{}
	_, _, err = svc.resolveSeed(&req)
	assert.Error(t, err)
}
