package course

import (
	"context"
	"database/sql"
	"errors"
	"math/rand"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrComponentLocked is returned when a definition edit would invalidate
	// an attempt somebody is in the middle of.
	ErrComponentLocked = errors.New("component has in-progress attempts")
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) PutCourse(ctx context.Context, c Course) error {
	if c.CreatedAt == 0 {
		c.CreatedAt = time.Now().Unix()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO courses (id,name,created_by,created_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name`,
		c.ID, c.Name, c.CreatedBy, c.CreatedAt)
	return err
}

func (s *Store) GetCourse(ctx context.Context, id string) (Course, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,name,created_by,created_at FROM courses WHERE id=$1`, id)
	var c Course
	if err := row.Scan(&c.ID, &c.Name, &c.CreatedBy, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Course{}, ErrNotFound
		}
		return Course{}, err
	}
	return c, nil
}

// DeleteCourse removes the course and, via ON DELETE CASCADE, its components,
// attempts and progress rows in one set-based statement per table.
func (s *Store) DeleteCourse(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM courses WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Enroll(ctx context.Context, courseID, studentID string) error {
	now := time.Now().Unix()
	if _, err := s.db.ExecContext(ctx, `INSERT INTO course_students (course_id,student_id,status,enrolled_at)
		VALUES ($1,$2,'active',$3)
		ON CONFLICT (course_id,student_id) DO UPDATE SET status='active'`,
		courseID, studentID, now); err != nil {
		return err
	}
	// enrollment stamp on the aggregate row; the first enrollment wins
	_, err := s.db.ExecContext(ctx, `INSERT INTO course_progress (user_id,course_id,status,percent,enrolled_at)
		VALUES ($1,$2,'not_started',0,$3)
		ON CONFLICT (user_id,course_id) DO UPDATE SET
			enrolled_at=COALESCE(course_progress.enrolled_at, EXCLUDED.enrolled_at)`,
		studentID, courseID, now)
	return err
}

func (s *Store) IsEnrolled(ctx context.Context, courseID, studentID string) bool {
	var ok bool
	_ = s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM course_students WHERE course_id=$1 AND student_id=$2 AND status='active')`,
		courseID, studentID).Scan(&ok)
	return ok
}

// PutComponent inserts or updates a component. Updating the definition of a
// component that has in-progress attempts is refused: question-set edits are
// forbidden while an attempt is outstanding.
func (s *Store) PutComponent(ctx context.Context, c Component) error {
	def, err := c.encodeDefinition()
	if err != nil {
		return err
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM course_components WHERE id=$1)`, c.ID).Scan(&exists); err != nil {
		return err
	}
	if exists {
		var inProgress bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM attempts WHERE component_id=$1 AND status='in_progress')`,
			c.ID).Scan(&inProgress); err != nil {
			return err
		}
		if inProgress {
			return ErrComponentLocked
		}
	}
	if c.CreatedAt == 0 {
		c.CreatedAt = time.Now().Unix()
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO course_components
		(id,course_id,kind,title,position,required,definition_json,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			title=EXCLUDED.title,
			position=EXCLUDED.position,
			required=EXCLUDED.required,
			definition_json=EXCLUDED.definition_json`,
		c.ID, c.CourseID, string(c.Kind), c.Title, c.Position, c.Required, def, c.CreatedAt)
	return err
}

// GetComponent returns the full component including answer keys. Callers
// serving students should use GetComponentStudent.
func (s *Store) GetComponent(ctx context.Context, id string) (Component, error) {
	return scanComponent(s.db.QueryRowContext(ctx, `SELECT id,course_id,kind,title,position,required,definition_json,created_at
		FROM course_components WHERE id=$1`, id))
}

// GetComponentStudent strips answer keys and, when the definition asks for
// it, shuffles question order per fetch.
func (s *Store) GetComponentStudent(ctx context.Context, id string) (Component, error) {
	c, err := s.GetComponent(ctx, id)
	if err != nil {
		return Component{}, err
	}
	c.StripAnswerKeys()
	if c.Assessment != nil && c.Assessment.Shuffle {
		qs := c.Assessment.Questions
		rand.Shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
	}
	return c, nil
}

func (s *Store) ListComponents(ctx context.Context, courseID string) ([]Component, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,course_id,kind,title,position,required,definition_json,created_at
		FROM course_components WHERE course_id=$1 ORDER BY position, id`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Component{}
	for rows.Next() {
		c, err := scanComponent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteComponent removes the component; attempts and progress rows go with
// it through the FK cascade, never row-by-row.
func (s *Store) DeleteComponent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM course_components WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComponent(row rowScanner) (Component, error) {
	var c Component
	var kind, def string
	if err := row.Scan(&c.ID, &c.CourseID, &kind, &c.Title, &c.Position, &c.Required, &def, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Component{}, ErrNotFound
		}
		return Component{}, err
	}
	c.Kind = Kind(kind)
	if err := c.decodeDefinition(def); err != nil {
		return Component{}, err
	}
	return c, nil
}
