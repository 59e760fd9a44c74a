// Package persistence provides SQLite-based storage for pitch curves and
// gear layouts. Gear state beyond the main curve and the placement centers
// is derived, so nothing else is stored.
package persistence

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/jbeda/geom"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/gearworks/internal/gear"
	"github.com/talgya/gearworks/internal/polar"
	"github.com/talgya/gearworks/internal/scene"
)

// ErrNotFound is returned when a curve or scene does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps a SQLite connection.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS curves (
		fingerprint TEXT PRIMARY KEY,
		periods_count INTEGER NOT NULL,
		rays_json TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS scenes (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		shape TEXT NOT NULL,
		seed INTEGER NOT NULL,
		main_curve TEXT NOT NULL REFERENCES curves(fingerprint),
		main_x REAL NOT NULL,
		main_y REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS placements (
		scene_id TEXT NOT NULL REFERENCES scenes(id),
		seq INTEGER NOT NULL,
		parent INTEGER NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		distance REAL NOT NULL,
		PRIMARY KEY (scene_id, seq)
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_scenes_created ON scenes(created_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Fingerprint returns a content hash of a curve. Equal curves always share
// a fingerprint.
func Fingerprint(curve polar.PolarCurve) string {
	h := xxhash.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(curve.PeriodsCount))
	h.Write(buf[:])
	for _, r := range curve.PeriodRays {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(r.Angle))
		h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(r.Radius))
		h.Write(buf[:])
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// SaveCurve stores a curve under its fingerprint. Saving the same curve
// twice is a no-op.
func (db *DB) SaveCurve(curve polar.PolarCurve) (string, error) {
	if err := curve.Validate(); err != nil {
		return "", err
	}
	return saveCurve(db.conn, curve)
}

func saveCurve(ex sqlx.Execer, curve polar.PolarCurve) (string, error) {
	raysJSON, err := json.Marshal(curve.PeriodRays)
	if err != nil {
		return "", fmt.Errorf("marshal rays: %w", err)
	}

	fp := Fingerprint(curve)
	_, err = ex.Exec(
		"INSERT OR IGNORE INTO curves (fingerprint, periods_count, rays_json, created_at) VALUES (?, ?, ?, ?)",
		fp, curve.PeriodsCount, string(raysJSON), time.Now().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("insert curve %s: %w", fp, err)
	}
	return fp, nil
}

type curveRow struct {
	PeriodsCount int    `db:"periods_count"`
	RaysJSON     string `db:"rays_json"`
}

// LoadCurve retrieves a curve by fingerprint.
func (db *DB) LoadCurve(fingerprint string) (polar.PolarCurve, error) {
	var row curveRow
	err := db.conn.Get(&row, "SELECT periods_count, rays_json FROM curves WHERE fingerprint = ?", fingerprint)
	if errors.Is(err, sql.ErrNoRows) {
		return polar.PolarCurve{}, fmt.Errorf("curve %s: %w", fingerprint, ErrNotFound)
	}
	if err != nil {
		return polar.PolarCurve{}, fmt.Errorf("load curve %s: %w", fingerprint, err)
	}

	curve := polar.PolarCurve{PeriodsCount: row.PeriodsCount}
	if err := json.Unmarshal([]byte(row.RaysJSON), &curve.PeriodRays); err != nil {
		return polar.PolarCurve{}, fmt.Errorf("decode curve %s: %w", fingerprint, err)
	}
	return curve, nil
}

// Placement is a companion gear: the index of its driver in the scene's
// gear list (0 = main gear), its center and the fitted center distance.
type Placement struct {
	Parent   int        `json:"parent"`
	Center   geom.Coord `json:"center"`
	Distance float64    `json:"distance"`
}

// SceneRecord is a stored layout.
type SceneRecord struct {
	ID         string      `json:"id"`
	CreatedAt  time.Time   `json:"created_at"`
	Shape      scene.Shape `json:"shape"`
	Seed       int64       `json:"seed"`
	MainCurve  string      `json:"main_curve"` // Curve fingerprint
	MainCenter geom.Coord  `json:"main_center"`
	Placements []Placement `json:"placements,omitempty"`
	GearCount  int         `json:"gear_count"`
}

// Record describes a scene as a SceneRecord, without saving it. The ID and
// creation time are left for SaveScene.
func Record(s *scene.Scene, shape scene.Shape, seed int64) (SceneRecord, polar.PolarCurve, error) {
	main := s.Main()
	curve := polar.PolarCurve{PeriodRays: main.PeriodRays(), PeriodsCount: main.PeriodsCount()}

	rec := SceneRecord{
		Shape:      shape,
		Seed:       seed,
		MainCurve:  Fingerprint(curve),
		MainCenter: main.Center(),
		GearCount:  len(s.Gears()),
	}
	for _, g := range s.Secondary() {
		parent := s.Index(g.Parent())
		if parent < 0 {
			return SceneRecord{}, polar.PolarCurve{}, fmt.Errorf("record scene: gear at %v has a driver outside the scene", g.Center())
		}
		rec.Placements = append(rec.Placements, Placement{
			Parent:   parent,
			Center:   g.Center(),
			Distance: g.Closure().Distance,
		})
	}
	return rec, curve, nil
}

// SaveScene stores the scene's main curve and every placement.
func (db *DB) SaveScene(s *scene.Scene, shape scene.Shape, seed int64) (SceneRecord, error) {
	rec, curve, err := Record(s, shape, seed)
	if err != nil {
		return SceneRecord{}, err
	}
	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Now().UTC()

	tx, err := db.conn.Beginx()
	if err != nil {
		return SceneRecord{}, err
	}
	defer tx.Rollback()

	if _, err := saveCurve(tx, curve); err != nil {
		return SceneRecord{}, err
	}

	_, err = tx.Exec(`INSERT INTO scenes (id, created_at, shape, seed, main_curve, main_x, main_y)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CreatedAt.UnixNano(), string(rec.Shape), rec.Seed, rec.MainCurve, rec.MainCenter.X, rec.MainCenter.Y,
	)
	if err != nil {
		return SceneRecord{}, fmt.Errorf("insert scene: %w", err)
	}

	stmt, err := tx.Preparex("INSERT INTO placements (scene_id, seq, parent, x, y, distance) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return SceneRecord{}, err
	}
	defer stmt.Close()

	for i, p := range rec.Placements {
		if _, err := stmt.Exec(rec.ID, i, p.Parent, p.Center.X, p.Center.Y, p.Distance); err != nil {
			return SceneRecord{}, fmt.Errorf("insert placement %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return SceneRecord{}, err
	}

	slog.Info("scene saved", "id", rec.ID, "shape", rec.Shape, "gears", rec.GearCount)
	return rec, nil
}

type sceneRow struct {
	ID        string  `db:"id"`
	CreatedAt int64   `db:"created_at"`
	Shape     string  `db:"shape"`
	Seed      int64   `db:"seed"`
	MainCurve string  `db:"main_curve"`
	MainX     float64 `db:"main_x"`
	MainY     float64 `db:"main_y"`
	GearCount int     `db:"gear_count"`
}

func (r sceneRow) record() SceneRecord {
	return SceneRecord{
		ID:         r.ID,
		CreatedAt:  time.Unix(0, r.CreatedAt).UTC(),
		Shape:      scene.Shape(r.Shape),
		Seed:       r.Seed,
		MainCurve:  r.MainCurve,
		MainCenter: geom.Coord{X: r.MainX, Y: r.MainY},
		GearCount:  r.GearCount,
	}
}

const sceneColumns = `s.id, s.created_at, s.shape, s.seed, s.main_curve, s.main_x, s.main_y,
	1 + (SELECT COUNT(*) FROM placements p WHERE p.scene_id = s.id) AS gear_count`

// LoadScene retrieves a layout with its placements.
func (db *DB) LoadScene(id string) (SceneRecord, error) {
	var row sceneRow
	err := db.conn.Get(&row, "SELECT "+sceneColumns+" FROM scenes s WHERE s.id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return SceneRecord{}, fmt.Errorf("scene %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return SceneRecord{}, fmt.Errorf("load scene %s: %w", id, err)
	}
	rec := row.record()

	var placements []struct {
		Parent   int     `db:"parent"`
		X        float64 `db:"x"`
		Y        float64 `db:"y"`
		Distance float64 `db:"distance"`
	}
	err = db.conn.Select(&placements, "SELECT parent, x, y, distance FROM placements WHERE scene_id = ? ORDER BY seq", id)
	if err != nil {
		return SceneRecord{}, fmt.Errorf("load placements %s: %w", id, err)
	}
	for _, p := range placements {
		rec.Placements = append(rec.Placements, Placement{
			Parent:   p.Parent,
			Center:   geom.Coord{X: p.X, Y: p.Y},
			Distance: p.Distance,
		})
	}
	return rec, nil
}

// ListScenes returns the most recent layouts, newest first, without their
// placements.
func (db *DB) ListScenes(limit int) ([]SceneRecord, error) {
	var rows []sceneRow
	err := db.conn.Select(&rows,
		"SELECT "+sceneColumns+" FROM scenes s ORDER BY s.created_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}

	records := make([]SceneRecord, len(rows))
	for i, r := range rows {
		records[i] = r.record()
	}
	return records, nil
}

// Restore rebuilds a stored layout. Each companion is rebuilt at its stored
// fitted distance without a new search, so the restored scene matches the
// saved one gear for gear.
func (db *DB) Restore(rec SceneRecord, viewport geom.Rect) (*scene.Scene, error) {
	curve, err := db.LoadCurve(rec.MainCurve)
	if err != nil {
		return nil, err
	}
	main, err := gear.Create(rec.MainCenter, curve)
	if err != nil {
		return nil, fmt.Errorf("restore scene %s: %w", rec.ID, err)
	}
	s, err := scene.New(main, viewport)
	if err != nil {
		return nil, err
	}

	for i, p := range rec.Placements {
		gears := s.Gears()
		if p.Parent < 0 || p.Parent >= len(gears) {
			return nil, fmt.Errorf("restore scene %s: placement %d has driver %d of %d gears", rec.ID, i, p.Parent, len(gears))
		}
		g, err := gear.SlaveAt(p.Center, p.Distance, gears[p.Parent])
		if err != nil {
			return nil, fmt.Errorf("restore scene %s: placement %d: %w", rec.ID, i, err)
		}
		if err := s.Attach(g); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("meta %s: %w", key, ErrNotFound)
	}
	return value, err
}
