package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Object is one persistent inventory record. Rows are never deleted:
// disappearance flips is_present, reappearance flips it back.
type Object struct {
	ID         int64   `json:"id"`
	ClassName  string  `json:"class_name"`
	ViewAngle  int     `json:"view_angle"`
	Confidence float64 `json:"confidence"`

	BBoxX int `json:"bbox_x"`
	BBoxY int `json:"bbox_y"`
	BBoxW int `json:"bbox_w"`
	BBoxH int `json:"bbox_h"`

	PosX *float64 `json:"pos_x,omitempty"`
	PosY *float64 `json:"pos_y,omitempty"`
	PosZ *float64 `json:"pos_z,omitempty"`

	DepthSource string `json:"depth_source"`
	Present     bool   `json:"is_present"`

	IsMoved    bool       `json:"is_moved"`
	Behavioral string     `json:"behavioral_state"`
	MovedAt    *time.Time `json:"moved_at,omitempty"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`

	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`

	HasThumbnail bool `json:"has_thumbnail"`
}

// ObjectData carries the mutable per-observation fields for create/update.
type ObjectData struct {
	ClassName  string
	ViewAngle  int
	Confidence float64

	BBoxX, BBoxY, BBoxW, BBoxH int

	// Pos* are world coordinates in millimetres; nil means no position known.
	PosX, PosY, PosZ *float64

	DepthSource string
	Thumbnail   []byte
}

const objectColumns = `
	o.id, c.name, o.view_angle, o.confidence,
	o.bbox_x, o.bbox_y, o.bbox_w, o.bbox_h,
	o.pos_x, o.pos_y, o.pos_z,
	o.depth_source, o.is_present,
	o.is_moved, o.behavioral_state, o.moved_at, o.returned_at,
	o.first_seen, o.last_seen,
	o.thumbnail IS NOT NULL`

// CreateObject inserts a new object row and returns its assigned id. The
// class row is created on demand.
func (s *Store) CreateObject(data ObjectData) (int64, error) {
	classID, err := s.EnsureClass(data.ClassName)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	res, err := s.Exec(`
		INSERT INTO objects (
			class_id, view_angle, confidence,
			bbox_x, bbox_y, bbox_w, bbox_h,
			pos_x, pos_y, pos_z,
			depth_source, is_present, thumbnail,
			first_seen, last_seen
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)`,
		classID, data.ViewAngle, data.Confidence,
		data.BBoxX, data.BBoxY, data.BBoxW, data.BBoxH,
		data.PosX, data.PosY, data.PosZ,
		data.DepthSource, data.Thumbnail,
		now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert object: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get object id: %w", err)
	}
	return id, nil
}

// UpdateObjectData refreshes an object's stored observation. The 3D position
// is blended into the existing one with an exponential moving average so a
// single noisy frame cannot teleport the object; everything else overwrites.
func (s *Store) UpdateObjectData(id int64, data ObjectData) error {
	var curX, curY, curZ sql.NullFloat64
	err := s.QueryRow(`SELECT pos_x, pos_y, pos_z FROM objects WHERE id = ?`, id).
		Scan(&curX, &curY, &curZ)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read object %d: %w", id, err)
	}

	posX := s.smooth(curX, data.PosX)
	posY := s.smooth(curY, data.PosY)
	posZ := s.smooth(curZ, data.PosZ)

	query := `
		UPDATE objects SET
			confidence = ?,
			bbox_x = ?, bbox_y = ?, bbox_w = ?, bbox_h = ?,
			pos_x = ?, pos_y = ?, pos_z = ?,
			depth_source = ?,
			last_seen = ?`
	args := []interface{}{
		data.Confidence,
		data.BBoxX, data.BBoxY, data.BBoxW, data.BBoxH,
		posX, posY, posZ,
		data.DepthSource,
		time.Now().UTC(),
	}
	if data.Thumbnail != nil {
		query += `, thumbnail = ?`
		args = append(args, data.Thumbnail)
	}
	query += ` WHERE id = ?`
	args = append(args, id)

	res, err := s.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update object %d: %w", id, err)
	}
	return checkAffected(res, id)
}

// smooth blends an incoming coordinate into the stored one. Missing incoming
// values keep the stored coordinate; a missing stored value adopts the
// incoming one unsmoothed.
func (s *Store) smooth(current sql.NullFloat64, incoming *float64) *float64 {
	if incoming == nil {
		if !current.Valid {
			return nil
		}
		v := current.Float64
		return &v
	}
	if !current.Valid {
		v := *incoming
		return &v
	}
	v := current.Float64 + s.positionAlpha*(*incoming-current.Float64)
	return &v
}

// MarkPresent flips an object back to present and refreshes last_seen.
func (s *Store) MarkPresent(id int64) error {
	res, err := s.Exec(`UPDATE objects SET is_present = 1, last_seen = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark object %d present: %w", id, err)
	}
	return checkAffected(res, id)
}

// MarkAbsent flips an object to absent. The row stays; identity resumes if
// the object comes back.
func (s *Store) MarkAbsent(id int64) error {
	res, err := s.Exec(`UPDATE objects SET is_present = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark object %d absent: %w", id, err)
	}
	return checkAffected(res, id)
}

// SetMovementState records the moved flag. Transitioning to moved stamps
// moved_at; transitioning back stamps returned_at.
func (s *Store) SetMovementState(id int64, isMoved bool) error {
	var query string
	if isMoved {
		query = `UPDATE objects SET is_moved = 1, moved_at = ? WHERE id = ?`
	} else {
		query = `UPDATE objects SET is_moved = 0, returned_at = ? WHERE id = ?`
	}
	res, err := s.Exec(query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set movement state for object %d: %w", id, err)
	}
	return checkAffected(res, id)
}

// SetBehavioralState records the behavioural state machine's verdict.
func (s *Store) SetBehavioralState(id int64, state string) error {
	res, err := s.Exec(`UPDATE objects SET behavioral_state = ? WHERE id = ?`, state, id)
	if err != nil {
		return fmt.Errorf("failed to set behavioral state for object %d: %w", id, err)
	}
	return checkAffected(res, id)
}

// GetObject loads one object by id.
func (s *Store) GetObject(id int64) (*Object, error) {
	row := s.QueryRow(`
		SELECT `+objectColumns+`
		FROM objects o JOIN classes c ON o.class_id = c.id
		WHERE o.id = ?`, id)
	obj, err := scanObject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load object %d: %w", id, err)
	}
	return obj, nil
}

// ObjectFilter narrows ListObjects. Zero values mean no filtering.
type ObjectFilter struct {
	ViewAngle   *int
	PresentOnly bool
	ClassName   string
}

// ListObjects returns objects matching the filter, newest first. Objects
// whose class is hidden (the shadow class) are excluded.
func (s *Store) ListObjects(filter ObjectFilter) ([]Object, error) {
	query := `
		SELECT ` + objectColumns + `
		FROM objects o JOIN classes c ON o.class_id = c.id
		WHERE c.is_hidden = 0`
	var args []interface{}
	if filter.ViewAngle != nil {
		query += ` AND o.view_angle = ?`
		args = append(args, *filter.ViewAngle)
	}
	if filter.PresentOnly {
		query += ` AND o.is_present = 1`
	}
	if filter.ClassName != "" {
		query += ` AND c.name = ?`
		args = append(args, filter.ClassName)
	}
	query += ` ORDER BY o.last_seen DESC`

	rows, err := s.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}
	defer rows.Close()

	var objects []Object
	for rows.Next() {
		obj, err := scanObject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan object row: %w", err)
		}
		objects = append(objects, *obj)
	}
	return objects, rows.Err()
}

// Thumbnail returns the stored thumbnail for an object, or ErrNotFound.
func (s *Store) Thumbnail(id int64) ([]byte, error) {
	var data []byte
	err := s.QueryRow(`SELECT thumbnail FROM objects WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && data == nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load thumbnail for object %d: %w", id, err)
	}
	return data, nil
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanObject(row scannable) (*Object, error) {
	var obj Object
	var posX, posY, posZ sql.NullFloat64
	var movedAt, returnedAt sql.NullTime
	err := row.Scan(
		&obj.ID, &obj.ClassName, &obj.ViewAngle, &obj.Confidence,
		&obj.BBoxX, &obj.BBoxY, &obj.BBoxW, &obj.BBoxH,
		&posX, &posY, &posZ,
		&obj.DepthSource, &obj.Present,
		&obj.IsMoved, &obj.Behavioral, &movedAt, &returnedAt,
		&obj.FirstSeen, &obj.LastSeen,
		&obj.HasThumbnail,
	)
	if err != nil {
		return nil, err
	}
	if posX.Valid {
		obj.PosX = &posX.Float64
	}
	if posY.Valid {
		obj.PosY = &posY.Float64
	}
	if posZ.Valid {
		obj.PosZ = &posZ.Float64
	}
	if movedAt.Valid {
		obj.MovedAt = &movedAt.Time
	}
	if returnedAt.Valid {
		obj.ReturnedAt = &returnedAt.Time
	}
	return &obj, nil
}

func checkAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("object %d: %w", id, ErrNotFound)
	}
	return nil
}
