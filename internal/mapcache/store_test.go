package mapcache_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/maptoposter/poster-api/internal/mapcache"
)

func newEntry(city, country string, distance int) *mapcache.Entry {
	return &mapcache.Entry{
		Graph:    []byte("graph-" + city),
		Water:    []byte("water-" + city),
		Parks:    []byte("parks-" + city),
		Coords:   mapcache.Coords{37.7749, -122.4194},
		City:     city,
		Country:  country,
		Distance: distance,
	}
}

func rewriteCachedAt(store *mapcache.Store, key mapcache.Key, cachedAt string) {
	path := filepath.Join(store.Path(key), mapcache.MetaFile)
	data, err := os.ReadFile(path)
	Expect(err).To(BeNil())

	raw := map[string]any{}
	Expect(json.Unmarshal(data, &raw)).To(Succeed())
	raw["cached_at"] = cachedAt

	data, err = json.Marshal(raw)
	Expect(err).To(BeNil())
	Expect(os.WriteFile(path, data, 0644)).To(Succeed())
}

var _ = Describe("map cache store", func() {
	var (
		root  string
		store *mapcache.Store
		key   mapcache.Key
	)

	BeforeEach(func() {
		root = filepath.Join(GinkgoT().TempDir(), "cache")
		store = mapcache.NewStore(root)
		key = mapcache.NewKey("San Francisco", "USA", 2000)
	})

	Context("save and load", func() {
		It("returns what was saved", func() {
			entry := newEntry("San Francisco", "USA", 2000)
			Expect(store.Save(key, entry)).To(BeTrue())

			loaded, ok := store.Load(key)
			Expect(ok).To(BeTrue())
			Expect(loaded.Graph).To(Equal(entry.Graph))
			Expect(loaded.Water).To(Equal(entry.Water))
			Expect(loaded.Parks).To(Equal(entry.Parks))
			Expect(loaded.Coords).To(Equal(entry.Coords))
			Expect(loaded.City).To(Equal("San Francisco"))
			Expect(loaded.Country).To(Equal("USA"))
			Expect(loaded.Distance).To(Equal(2000))
			Expect(time.Since(loaded.CachedAt)).To(BeNumerically("<", mapcache.DefaultExpiry))
		})

		It("writes the documented layout", func() {
			Expect(store.Save(key, newEntry("San Francisco", "USA", 2000))).To(BeTrue())

			for _, name := range []string{mapcache.GraphFile, mapcache.WaterFile, mapcache.ParksFile, mapcache.MetaFile} {
				_, err := os.Stat(filepath.Join(root, "san_francisco_usa_2000", name))
				Expect(err).To(BeNil())
			}

			data, err := os.ReadFile(filepath.Join(root, "san_francisco_usa_2000", mapcache.MetaFile))
			Expect(err).To(BeNil())
			raw := map[string]any{}
			Expect(json.Unmarshal(data, &raw)).To(Succeed())
			Expect(raw).To(HaveKey("city"))
			Expect(raw).To(HaveKey("country"))
			Expect(raw).To(HaveKey("distance"))
			Expect(raw).To(HaveKey("cached_at"))
			Expect(raw["coords"]).To(HaveLen(2))
		})

		It("skips optional blobs which are nil", func() {
			entry := newEntry("San Francisco", "USA", 2000)
			entry.Water = nil
			entry.Parks = nil
			Expect(store.Save(key, entry)).To(BeTrue())

			_, err := os.Stat(filepath.Join(store.Path(key), mapcache.WaterFile))
			Expect(os.IsNotExist(err)).To(BeTrue())

			loaded, ok := store.Load(key)
			Expect(ok).To(BeTrue())
			Expect(loaded.Water).To(BeNil())
			Expect(loaded.Parks).To(BeNil())
		})

		It("overwrites an existing entry wholesale", func() {
			Expect(store.Save(key, newEntry("San Francisco", "USA", 2000))).To(BeTrue())

			replacement := newEntry("San Francisco", "USA", 2000)
			replacement.Graph = []byte("new graph")
			replacement.Water = nil
			Expect(store.Save(key, replacement)).To(BeTrue())

			loaded, ok := store.Load(key)
			Expect(ok).To(BeTrue())
			Expect(loaded.Graph).To(Equal([]byte("new graph")))
			Expect(loaded.Water).To(BeNil())
		})

		It("refuses an entry without a graph", func() {
			entry := newEntry("San Francisco", "USA", 2000)
			entry.Graph = nil
			Expect(store.Save(key, entry)).To(BeFalse())
			Expect(store.IsValid(key)).To(BeFalse())
		})

		It("leaves no temporary directories behind", func() {
			Expect(store.Save(key, newEntry("San Francisco", "USA", 2000))).To(BeTrue())
			Expect(store.Save(key, newEntry("San Francisco", "USA", 2000))).To(BeTrue())

			entries, err := os.ReadDir(root)
			Expect(err).To(BeNil())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Name()).To(Equal("san_francisco_usa_2000"))
		})
	})

	Context("validity", func() {
		It("is invalid when nothing was cached", func() {
			Expect(store.IsValid(key)).To(BeFalse())
			_, ok := store.Load(key)
			Expect(ok).To(BeFalse())
		})

		It("expires entries older than 30 days", func() {
			Expect(store.Save(key, newEntry("San Francisco", "USA", 2000))).To(BeTrue())
			rewriteCachedAt(store, key, time.Now().Add(-31*24*time.Hour).Format(time.RFC3339))

			Expect(store.IsValid(key)).To(BeFalse())
			_, ok := store.Load(key)
			Expect(ok).To(BeFalse())
		})

		It("keeps entries younger than 30 days", func() {
			Expect(store.Save(key, newEntry("San Francisco", "USA", 2000))).To(BeTrue())
			rewriteCachedAt(store, key, time.Now().Add(-29*24*time.Hour).Format(time.RFC3339))

			Expect(store.IsValid(key)).To(BeTrue())
		})

		It("accepts zone-less ISO timestamps", func() {
			Expect(store.Save(key, newEntry("San Francisco", "USA", 2000))).To(BeTrue())
			rewriteCachedAt(store, key, time.Now().Add(-time.Hour).Format("2006-01-02T15:04:05.000000"))

			Expect(store.IsValid(key)).To(BeTrue())
		})

		It("uses the injected clock", func() {
			now := time.Now()
			clocked := mapcache.NewStore(root, mapcache.WithClock(func() time.Time { return now }))
			Expect(clocked.Save(key, newEntry("San Francisco", "USA", 2000))).To(BeTrue())
			Expect(clocked.IsValid(key)).To(BeTrue())

			now = now.Add(mapcache.DefaultExpiry)
			Expect(clocked.IsValid(key)).To(BeFalse())
		})

		It("is invalid when the graph is missing", func() {
			Expect(store.Save(key, newEntry("San Francisco", "USA", 2000))).To(BeTrue())
			Expect(os.Remove(filepath.Join(store.Path(key), mapcache.GraphFile))).To(Succeed())

			Expect(store.IsValid(key)).To(BeFalse())
			_, ok := store.Load(key)
			Expect(ok).To(BeFalse())
		})

		It("loads without water when water.pkl is missing", func() {
			Expect(store.Save(key, newEntry("San Francisco", "USA", 2000))).To(BeTrue())
			Expect(os.Remove(filepath.Join(store.Path(key), mapcache.WaterFile))).To(Succeed())

			loaded, ok := store.Load(key)
			Expect(ok).To(BeTrue())
			Expect(loaded.Water).To(BeNil())
			Expect(loaded.Parks).NotTo(BeNil())
		})

		It("treats corrupted metadata as a miss", func() {
			Expect(store.Save(key, newEntry("San Francisco", "USA", 2000))).To(BeTrue())
			Expect(os.WriteFile(filepath.Join(store.Path(key), mapcache.MetaFile), []byte("{not json"), 0644)).To(Succeed())

			Expect(store.IsValid(key)).To(BeFalse())
			_, ok := store.Load(key)
			Expect(ok).To(BeFalse())
		})
	})

	Context("find by location", func() {
		It("matches regardless of the distance suffix", func() {
			Expect(store.Save(mapcache.NewKey("San Francisco", "USA", 8000), newEntry("San Francisco", "USA", 8000))).To(BeTrue())

			meta, ok := store.FindByLocation("san francisco", "usa")
			Expect(ok).To(BeTrue())
			Expect(meta.CacheKey).To(Equal("san_francisco_usa_8000"))
			Expect(meta.Distance).To(Equal(8000))
		})

		It("does not match another city sharing a prefix", func() {
			Expect(store.Save(mapcache.NewKey("San Francisco Bay", "USA", 8000), newEntry("San Francisco Bay", "USA", 8000))).To(BeTrue())

			_, ok := store.FindByLocation("San Francisco", "USA")
			Expect(ok).To(BeFalse())
		})

		It("prefers the most recently cached distance", func() {
			now := time.Now().Add(-time.Hour)
			clocked := mapcache.NewStore(root, mapcache.WithClock(func() time.Time { return now }))

			Expect(clocked.Save(mapcache.NewKey("Paris", "France", 15000), newEntry("Paris", "France", 15000))).To(BeTrue())
			now = now.Add(10 * time.Minute)
			Expect(clocked.Save(mapcache.NewKey("Paris", "France", 4000), newEntry("Paris", "France", 4000))).To(BeTrue())

			meta, ok := clocked.FindByLocation("Paris", "France")
			Expect(ok).To(BeTrue())
			Expect(meta.Distance).To(Equal(4000))
		})

		It("prefers an older valid distance over a newer incomplete one", func() {
			now := time.Now().Add(-time.Hour)
			clocked := mapcache.NewStore(root, mapcache.WithClock(func() time.Time { return now }))

			older := mapcache.NewKey("Paris", "France", 2000)
			newer := mapcache.NewKey("Paris", "France", 4000)
			Expect(clocked.Save(older, newEntry("Paris", "France", 2000))).To(BeTrue())
			now = now.Add(10 * time.Minute)
			Expect(clocked.Save(newer, newEntry("Paris", "France", 4000))).To(BeTrue())
			Expect(os.Remove(filepath.Join(clocked.Path(newer), mapcache.GraphFile))).To(Succeed())

			meta, ok := clocked.FindByLocation("Paris", "France")
			Expect(ok).To(BeTrue())
			Expect(meta.CacheKey).To(Equal(string(older)))
		})

		It("still finds an invalid entry when nothing valid is cached", func() {
			Expect(store.Save(key, newEntry("San Francisco", "USA", 2000))).To(BeTrue())
			Expect(os.Remove(filepath.Join(store.Path(key), mapcache.GraphFile))).To(Succeed())

			meta, ok := store.FindByLocation("San Francisco", "USA")
			Expect(ok).To(BeTrue())
			Expect(meta.CacheKey).To(Equal(string(key)))
		})

		It("finds a city whose name needed escaping", func() {
			acdc := mapcache.NewKey("AC/DC", "USA", 2000)
			Expect(store.Save(acdc, newEntry("AC/DC", "USA", 2000))).To(BeTrue())

			meta, ok := store.FindByLocation("AC/DC", "USA")
			Expect(ok).To(BeTrue())
			Expect(meta.CacheKey).To(Equal(string(acdc)))
			Expect(meta.City).To(Equal("AC/DC"))
		})

		It("misses when the root does not exist", func() {
			Expect(os.RemoveAll(root)).To(Succeed())
			_, ok := store.FindByLocation("Paris", "France")
			Expect(ok).To(BeFalse())
		})
	})

	Context("list and clear", func() {
		BeforeEach(func() {
			Expect(store.Save(mapcache.NewKey("Paris", "France", 4000), newEntry("Paris", "France", 4000))).To(BeTrue())
			Expect(store.Save(mapcache.NewKey("Tokyo", "Japan", 8000), newEntry("Tokyo", "Japan", 8000))).To(BeTrue())
		})

		It("lists every entry including expired ones", func() {
			rewriteCachedAt(store, mapcache.NewKey("Tokyo", "Japan", 8000), time.Now().Add(-60*24*time.Hour).Format(time.RFC3339))

			metas := store.List()
			Expect(metas).To(HaveLen(2))
			Expect(metas[0].CacheKey).To(Equal("paris_france_4000"))
			Expect(metas[1].CacheKey).To(Equal("tokyo_japan_8000"))
		})

		It("ignores directories without metadata", func() {
			Expect(os.MkdirAll(filepath.Join(root, "stray"), 0755)).To(Succeed())
			Expect(store.List()).To(HaveLen(2))
		})

		It("clears a single entry", func() {
			Expect(store.Clear(mapcache.NewKey("Paris", "France", 4000))).To(BeTrue())

			metas := store.List()
			Expect(metas).To(HaveLen(1))
			Expect(metas[0].City).To(Equal("Tokyo"))
		})

		It("clears everything and recreates the root", func() {
			Expect(store.ClearAll()).To(BeTrue())

			Expect(store.List()).To(BeEmpty())
			info, err := os.Stat(root)
			Expect(err).To(BeNil())
			Expect(info.IsDir()).To(BeTrue())
		})
	})

	Context("key escaping", func() {
		It("keeps cities that only differ by a separator apart", func() {
			acdc := mapcache.NewKey("AC/DC", "USA", 2000)
			plain := mapcache.NewKey("ACDC", "USA", 2000)
			Expect(store.Path(acdc)).NotTo(Equal(store.Path(plain)))

			Expect(store.Save(acdc, newEntry("AC/DC", "USA", 2000))).To(BeTrue())
			_, ok := store.Load(plain)
			Expect(ok).To(BeFalse())

			loaded, ok := store.Load(acdc)
			Expect(ok).To(BeTrue())
			Expect(loaded.City).To(Equal("AC/DC"))
		})

		It("keeps a traversal attempt in a directory of its own", func() {
			dots := mapcache.NewKey("..", "..", 2000)
			Expect(dots.Valid()).To(BeTrue())
			Expect(store.Save(dots, newEntry("..", "..", 2000))).To(BeTrue())
			Expect(filepath.Dir(store.Path(dots))).To(Equal(root))
			Expect(store.List()).To(HaveLen(1))
		})

		It("refuses keys that are not built by NewKey", func() {
			bad := mapcache.Key("../../etc")
			Expect(store.Path(bad)).To(HavePrefix(root))
			Expect(store.Save(bad, newEntry("x", "y", 1))).To(BeFalse())
			Expect(store.IsValid(bad)).To(BeFalse())
			Expect(store.Clear(bad)).To(BeFalse())
		})
	})
})
