package db

import "fmt"

// Province is a top-level region.
type Province struct {
	ID   int    `json:"id"`
	Name string `json:"province_name"`
	Code string `json:"province_code"`
}

// City belongs to a province. ProvinceID is not enforced by the schema.
type City struct {
	ID         int    `json:"id"`
	Name       string `json:"city_name"`
	Code       string `json:"city_code"`
	ProvinceID int    `json:"province_id"`
}

// County belongs to a city. CityID is not enforced by the schema.
type County struct {
	ID     int    `json:"id"`
	Name   string `json:"county_name"`
	Code   string `json:"county_code"`
	CityID int    `json:"city_id"`
}

func (p *Province) columns() columnMap {
	return columnMap{
		"id":            intField{&p.ID},
		"province_name": textField{&p.Name},
		"province_code": textField{&p.Code},
	}
}

func (c *City) columns() columnMap {
	return columnMap{
		"id":          intField{&c.ID},
		"city_name":   textField{&c.Name},
		"city_code":   textField{&c.Code},
		"province_id": intField{&c.ProvinceID},
	}
}

func (c *County) columns() columnMap {
	return columnMap{
		"id":          intField{&c.ID},
		"county_name": textField{&c.Name},
		"county_code": textField{&c.Code},
		"city_id":     intField{&c.CityID},
	}
}

// insert runs query and returns the id the store assigned to the new row.
func (db *DB) insert(query string, args ...any) (int, error) {
	result, err := db.DB.Exec(query, args...)
	if err != nil {
		return 0, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return int(id), nil
}

// SaveProvince inserts p and sets p.ID. A nil p is ignored.
// No uniqueness check is made: saving the same province twice stores two rows.
func (db *DB) SaveProvince(p *Province) error {
	if p == nil {
		return nil
	}

	id, err := db.insert(
		`INSERT INTO province (province_name, province_code) VALUES (?, ?)`,
		p.Name, p.Code,
	)
	if err != nil {
		return fmt.Errorf("failed to save province: %w", err)
	}

	p.ID = id
	return nil
}

// LoadProvinces returns every province ordered by id.
func (db *DB) LoadProvinces() LoadResult[Province] {
	rows, err := db.DB.Query(`SELECT * FROM province ORDER BY id ASC`)
	return collect("province", rows, err, (*Province).columns)
}

// SaveCity inserts c and sets c.ID. A nil c is ignored.
func (db *DB) SaveCity(c *City) error {
	if c == nil {
		return nil
	}

	id, err := db.insert(
		`INSERT INTO city (city_name, city_code, province_id) VALUES (?, ?, ?)`,
		c.Name, c.Code, c.ProvinceID,
	)
	if err != nil {
		return fmt.Errorf("failed to save city: %w", err)
	}

	c.ID = id
	return nil
}

// LoadCities returns the cities of provinceID ordered by id.
func (db *DB) LoadCities(provinceID int) LoadResult[City] {
	rows, err := db.DB.Query(`SELECT * FROM city WHERE province_id = ? ORDER BY id ASC`, provinceID)
	return collect("city", rows, err, (*City).columns)
}

// SaveCounty inserts c and sets c.ID. A nil c is ignored.
func (db *DB) SaveCounty(c *County) error {
	if c == nil {
		return nil
	}

	id, err := db.insert(
		`INSERT INTO county (county_name, county_code, city_id) VALUES (?, ?, ?)`,
		c.Name, c.Code, c.CityID,
	)
	if err != nil {
		return fmt.Errorf("failed to save county: %w", err)
	}

	c.ID = id
	return nil
}

// LoadCounties returns the counties of cityID ordered by id.
func (db *DB) LoadCounties(cityID int) LoadResult[County] {
	rows, err := db.DB.Query(`SELECT * FROM county WHERE city_id = ? ORDER BY id ASC`, cityID)
	return collect("county", rows, err, (*County).columns)
}
