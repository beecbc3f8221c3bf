// Package persistence stores full simulation state in SQLite. Saves are
// full-replace transactions, which gives the engine the idempotent
// upsert-by-id semantics it asks for without diffing.
package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/gram12321/tradergame04-sub000/internal/catalog"
	"github.com/gram12321/tradergame04-sub000/internal/economy"
	"github.com/gram12321/tradergame04-sub000/internal/engine"
)

// DB wraps a SQLite connection and the catalog needed to re-link loaded
// state to its static reference data.
type DB struct {
	conn *sqlx.DB
	cat  *catalog.Catalog
}

// Open opens or creates the database at path.
func Open(path string, cat *catalog.Catalog) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db := &DB{conn: conn, cat: cat}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error { return db.conn.Close() }

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS companies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		balance REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS facilities (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		city TEXT NOT NULL,
		kind TEXT NOT NULL,
		size INTEGER NOT NULL,
		workers INTEGER NOT NULL,
		effectivity REAL NOT NULL,
		prev_effectivity REAL NOT NULL,
		capacity REAL NOT NULL,
		office_mult REAL NOT NULL,
		admin_load REAL NOT NULL,
		recipe TEXT,
		progress INTEGER NOT NULL,
		producing INTEGER NOT NULL,
		batch_inputs_json TEXT NOT NULL,
		batch_outputs_json TEXT NOT NULL,
		inventory_json TEXT NOT NULL,
		prices_json TEXT NOT NULL,
		sales_json TEXT NOT NULL,
		routes_json TEXT NOT NULL,
		controlled_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS offers (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		facility_id TEXT NOT NULL,
		resource TEXT NOT NULL,
		amount_available REAL NOT NULL,
		amount_in_stock REAL NOT NULL,
		price REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS routes (
		id TEXT PRIMARY KEY,
		seller_company TEXT NOT NULL,
		seller_facility TEXT NOT NULL,
		buyer_company TEXT NOT NULL,
		buyer_facility TEXT NOT NULL,
		resource TEXT NOT NULL,
		amount_per_tick REAL NOT NULL,
		price_per_unit REAL NOT NULL,
		total_price REAL NOT NULL,
		seq INTEGER NOT NULL,
		last_failed_tick INTEGER,
		internal INTEGER NOT NULL,
		offer_id TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sim_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_facilities_company ON facilities(company_id);
	CREATE INDEX IF NOT EXISTS idx_offers_facility ON offers(facility_id);
	CREATE INDEX IF NOT EXISTS idx_routes_seq ON routes(seq);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// HasState reports whether a previous save exists.
func (db *DB) HasState() bool {
	var count int
	if err := db.conn.Get(&count, "SELECT COUNT(*) FROM sim_meta WHERE key = 'last_tick'"); err != nil {
		return false
	}
	return count > 0
}

// Save writes the full state in one transaction, replacing whatever was
// there.
func (db *DB) Save(st *engine.State) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"companies", "facilities", "offers", "routes"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return err
		}
	}

	for _, c := range st.Companies {
		if _, err := tx.Exec(
			"INSERT INTO companies (id, name, balance) VALUES (?, ?, ?)",
			c.ID, c.Name, c.Balance,
		); err != nil {
			return fmt.Errorf("insert company %s: %w", c.ID, err)
		}
	}

	for _, f := range st.Facilities {
		if err := insertFacility(tx, f); err != nil {
			return err
		}
	}

	for _, o := range st.Offers {
		if _, err := tx.Exec(
			`INSERT INTO offers (id, company_id, facility_id, resource, amount_available, amount_in_stock, price)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			o.ID, o.CompanyID, o.FacilityID, string(o.Resource), o.AmountAvailable, o.AmountInStock, o.Price,
		); err != nil {
			return fmt.Errorf("insert offer %s: %w", o.ID, err)
		}
	}

	for _, r := range st.Routes {
		var failed sql.NullInt64
		if r.LastFailedTick != nil {
			failed = sql.NullInt64{Int64: int64(*r.LastFailedTick), Valid: true}
		}
		if _, err := tx.Exec(
			`INSERT INTO routes (id, seller_company, seller_facility, buyer_company, buyer_facility,
			  resource, amount_per_tick, price_per_unit, total_price, seq, last_failed_tick, internal, offer_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.SellerCompany, r.SellerFacility, r.BuyerCompany, r.BuyerFacility,
			string(r.Resource), r.AmountPerTick, r.PricePerUnit, r.TotalPrice, r.Seq, failed, boolInt(r.Internal), r.OfferID,
		); err != nil {
			return fmt.Errorf("insert route %s: %w", r.ID, err)
		}
	}

	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO sim_meta (key, value) VALUES ('last_tick', ?), ('next_seq', ?)",
		strconv.FormatUint(st.Tick, 10), strconv.FormatUint(st.NextSeq, 10),
	); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Debug("state saved",
		"tick", st.Tick,
		"companies", len(st.Companies),
		"facilities", len(st.Facilities),
		"offers", len(st.Offers),
		"routes", len(st.Routes),
	)
	return nil
}

func insertFacility(tx *sqlx.Tx, f *economy.Facility) error {
	inventory, _ := json.Marshal(f.Inventory)
	prices, _ := json.Marshal(f.Prices)
	sales, _ := json.Marshal(f.Sales)
	routes, _ := json.Marshal(f.Routes)
	controlled, _ := json.Marshal(keys(f.Controlled))
	batchIn, _ := json.Marshal(f.BatchInputs)
	batchOut, _ := json.Marshal(f.BatchOutputs)

	var recipe sql.NullString
	if f.Recipe != nil {
		recipe = sql.NullString{String: f.Recipe.Name, Valid: true}
	}

	_, err := tx.Exec(
		`INSERT INTO facilities (id, company_id, city, kind, size, workers,
		  effectivity, prev_effectivity, capacity, office_mult, admin_load,
		  recipe, progress, producing, batch_inputs_json, batch_outputs_json,
		  inventory_json, prices_json, sales_json, routes_json, controlled_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.CompanyID, f.City.Name, f.Kind.String(), f.Size, f.Workers,
		f.Effectivity, f.PrevEffectivity, f.Capacity, f.OfficeMult, f.AdminLoad,
		recipe, f.Progress, boolInt(f.Producing), string(batchIn), string(batchOut),
		string(inventory), string(prices), string(sales), string(routes), string(controlled),
	)
	if err != nil {
		return fmt.Errorf("insert facility %s: %w", f.ID, err)
	}
	return nil
}

// Load reads the saved state back, re-linking cities and recipes from the
// catalog.
func (db *DB) Load() (*engine.State, error) {
	st := &engine.State{}

	rows, err := db.conn.Queryx("SELECT id, name, balance FROM companies")
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		c := &economy.Company{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Balance); err != nil {
			rows.Close()
			return nil, err
		}
		st.Companies = append(st.Companies, c)
	}
	rows.Close()

	facilities, err := db.loadFacilities()
	if err != nil {
		return nil, err
	}
	st.Facilities = facilities

	rows, err = db.conn.Queryx("SELECT id, company_id, facility_id, resource, amount_available, amount_in_stock, price FROM offers")
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		o := &economy.SellOffer{}
		var res string
		if err := rows.Scan(&o.ID, &o.CompanyID, &o.FacilityID, &res, &o.AmountAvailable, &o.AmountInStock, &o.Price); err != nil {
			rows.Close()
			return nil, err
		}
		o.Resource = catalog.ResourceID(res)
		st.Offers = append(st.Offers, o)
	}
	rows.Close()

	rows, err = db.conn.Queryx(
		`SELECT id, seller_company, seller_facility, buyer_company, buyer_facility,
		  resource, amount_per_tick, price_per_unit, total_price, seq, last_failed_tick, internal, offer_id
		 FROM routes ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		r := &economy.TradeRoute{}
		var res string
		var failed sql.NullInt64
		var internal int
		if err := rows.Scan(&r.ID, &r.SellerCompany, &r.SellerFacility, &r.BuyerCompany, &r.BuyerFacility,
			&res, &r.AmountPerTick, &r.PricePerUnit, &r.TotalPrice, &r.Seq, &failed, &internal, &r.OfferID); err != nil {
			rows.Close()
			return nil, err
		}
		r.Resource = catalog.ResourceID(res)
		r.Internal = internal != 0
		if failed.Valid {
			t := uint64(failed.Int64)
			r.LastFailedTick = &t
		}
		st.Routes = append(st.Routes, r)
	}
	rows.Close()

	if v, err := db.meta("last_tick"); err == nil {
		st.Tick, _ = strconv.ParseUint(v, 10, 64)
	}
	if v, err := db.meta("next_seq"); err == nil {
		st.NextSeq, _ = strconv.ParseUint(v, 10, 64)
	}
	return st, nil
}

func (db *DB) loadFacilities() ([]*economy.Facility, error) {
	rows, err := db.conn.Queryx(
		`SELECT id, company_id, city, kind, size, workers,
		  effectivity, prev_effectivity, capacity, office_mult, admin_load,
		  recipe, progress, producing, batch_inputs_json, batch_outputs_json,
		  inventory_json, prices_json, sales_json, routes_json, controlled_json
		 FROM facilities`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*economy.Facility
	for rows.Next() {
		f := &economy.Facility{}
		var cityName, kindName string
		var recipe sql.NullString
		var producing int
		var batchIn, batchOut, inventory, prices, sales, routes, controlled string
		if err := rows.Scan(&f.ID, &f.CompanyID, &cityName, &kindName, &f.Size, &f.Workers,
			&f.Effectivity, &f.PrevEffectivity, &f.Capacity, &f.OfficeMult, &f.AdminLoad,
			&recipe, &f.Progress, &producing, &batchIn, &batchOut,
			&inventory, &prices, &sales, &routes, &controlled); err != nil {
			return nil, err
		}

		city, ok := db.cat.Cities[cityName]
		if !ok {
			return nil, fmt.Errorf("facility %s: city %q not in catalog", f.ID, cityName)
		}
		f.City = city

		kind, ok := economy.KindFromString(kindName)
		if !ok {
			return nil, fmt.Errorf("facility %s: unknown kind %q", f.ID, kindName)
		}
		f.Kind = kind
		f.Params = db.cat.Facility[kindName]

		f.Producing = producing != 0
		if recipe.Valid {
			rec, ok := db.cat.Recipes[recipe.String]
			if !ok {
				return nil, fmt.Errorf("facility %s: recipe %q not in catalog", f.ID, recipe.String)
			}
			f.Recipe = rec
		}

		if err := json.Unmarshal([]byte(batchIn), &f.BatchInputs); err != nil {
			return nil, fmt.Errorf("facility %s batch inputs: %w", f.ID, err)
		}
		if err := json.Unmarshal([]byte(batchOut), &f.BatchOutputs); err != nil {
			return nil, fmt.Errorf("facility %s batch outputs: %w", f.ID, err)
		}
		if err := json.Unmarshal([]byte(inventory), &f.Inventory); err != nil {
			return nil, fmt.Errorf("facility %s inventory: %w", f.ID, err)
		}
		if err := json.Unmarshal([]byte(prices), &f.Prices); err != nil {
			return nil, fmt.Errorf("facility %s prices: %w", f.ID, err)
		}
		if err := json.Unmarshal([]byte(sales), &f.Sales); err != nil {
			return nil, fmt.Errorf("facility %s sales: %w", f.ID, err)
		}
		if err := json.Unmarshal([]byte(routes), &f.Routes); err != nil {
			return nil, fmt.Errorf("facility %s routes: %w", f.ID, err)
		}
		var controlledIDs []string
		if err := json.Unmarshal([]byte(controlled), &controlledIDs); err != nil {
			return nil, fmt.Errorf("facility %s controlled: %w", f.ID, err)
		}
		if kind == economy.KindOffice {
			f.Controlled = make(map[string]struct{}, len(controlledIDs))
			for _, id := range controlledIDs {
				f.Controlled[id] = struct{}{}
			}
		}
		if f.Routes == nil {
			f.Routes = make(map[string]*economy.RouteRecord)
		}
		if kind.HasInventory() && f.Inventory == nil {
			f.Inventory = make(map[catalog.ResourceID]float64)
		}
		if kind == economy.KindRetail {
			if f.Prices == nil {
				f.Prices = make(map[catalog.ResourceID]float64)
			}
			if f.Sales == nil {
				f.Sales = make(map[catalog.ResourceID]float64)
			}
		}
		out = append(out, f)
	}
	return out, nil
}

// Reset deletes every collection, the administrative full wipe.
func (db *DB) Reset() error {
	for _, table := range []string{"companies", "facilities", "offers", "routes", "sim_meta"} {
		if _, err := db.conn.Exec("DELETE FROM " + table); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) meta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM sim_meta WHERE key = ?", key)
	return value, err
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
