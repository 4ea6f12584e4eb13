package impact

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/sportsense/impactcore/internal/storage"
)

// SensorType names the sensor a calibration applies to. The detector
// only consumes accelerometer calibrations; force calibrations are
// stored for the bite-force path.
type SensorType string

const (
	SensorAccelerometer SensorType = "accelerometer"
	SensorForce         SensorType = "force"
)

// Calibration holds per-axis offset and scale coefficients for one
// device and sensor type. A reading is corrected as (raw - offset) * scale.
type Calibration struct {
	DeviceID  string
	Sensor    SensorType
	OffsetX   float64
	OffsetY   float64
	OffsetZ   float64
	ScaleX    float64
	ScaleY    float64
	ScaleZ    float64
	UpdatedAt int64
}

// Identity is the no-op calibration used when a device has none stored.
var Identity = Calibration{ScaleX: 1, ScaleY: 1, ScaleZ: 1}

// Apply corrects a raw triaxial reading.
func (c Calibration) Apply(x, y, z float64) (float64, float64, float64) {
	return (x - c.OffsetX) * c.ScaleX,
		(y - c.OffsetY) * c.ScaleY,
		(z - c.OffsetZ) * c.ScaleZ
}

// IsIdentity reports whether applying the calibration changes nothing.
func (c Calibration) IsIdentity() bool {
	return c.OffsetX == 0 && c.OffsetY == 0 && c.OffsetZ == 0 &&
		c.ScaleX == 1 && c.ScaleY == 1 && c.ScaleZ == 1
}

// CalibrationRepository persists per-device calibration coefficients,
// unique on (device id, sensor type).
type CalibrationRepository struct {
	store  *storage.Manager
	logger *slog.Logger
	now    func() time.Time
}

// NewCalibrationRepository creates a calibration repository. logger may
// be nil.
func NewCalibrationRepository(store *storage.Manager, logger *slog.Logger) *CalibrationRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &CalibrationRepository{
		store:  store,
		logger: logger.With("component", "calibration-repo"),
		now:    time.Now,
	}
}

// Put upserts the calibration for (device, sensor). Run by the
// calibration routine whenever it completes.
func (r *CalibrationRepository) Put(ctx context.Context, c Calibration) error {
	_, err := r.store.Execute(ctx,
		`INSERT INTO device_calibration
		     (device_id, sensor_type, offset_x, offset_y, offset_z, scale_x, scale_y, scale_z, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (device_id, sensor_type) DO UPDATE SET
		     offset_x = excluded.offset_x,
		     offset_y = excluded.offset_y,
		     offset_z = excluded.offset_z,
		     scale_x = excluded.scale_x,
		     scale_y = excluded.scale_y,
		     scale_z = excluded.scale_z,
		     updated_at = excluded.updated_at`,
		c.DeviceID, string(c.Sensor),
		c.OffsetX, c.OffsetY, c.OffsetZ,
		c.ScaleX, c.ScaleY, c.ScaleZ,
		r.now().UnixMilli(),
	)
	if err != nil {
		return &storage.PersistenceError{Op: "put calibration", Err: err}
	}
	return nil
}

// Get returns the calibration for (device, sensor), or Identity when the
// device has none stored. The second return reports whether a stored
// calibration was found.
func (r *CalibrationRepository) Get(ctx context.Context, deviceID string, sensor SensorType) (Calibration, bool, error) {
	c := Calibration{DeviceID: deviceID, Sensor: sensor}
	err := r.store.QueryRow(ctx,
		`SELECT offset_x, offset_y, offset_z, scale_x, scale_y, scale_z, updated_at
		 FROM device_calibration
		 WHERE device_id = ? AND sensor_type = ?`,
		deviceID, string(sensor),
	).Scan(&c.OffsetX, &c.OffsetY, &c.OffsetZ, &c.ScaleX, &c.ScaleY, &c.ScaleZ, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		id := Identity
		id.DeviceID = deviceID
		id.Sensor = sensor
		return id, false, nil
	}
	if err != nil {
		return Calibration{}, false, &storage.PersistenceError{Op: "get calibration", Err: err}
	}
	return c, true, nil
}
