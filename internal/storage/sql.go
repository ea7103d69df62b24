package storage

const (
	journalModeDeleteSQL = `PRAGMA journal_mode=DELETE`

	insertSessionSQL = `
INSERT INTO sessions (
                      run_id,
                      start_time,
                      source,
                      config)
VALUES (?, ?, ?, ?)`

	selectSessionSQL = `
SELECT 
    id, 
    run_id,
    start_time, 
    source, 
    config 
FROM sessions 
WHERE 
    id = ?`

	selectSessionsSQL = `
SELECT 
    id, 
    run_id,
    start_time, 
    source, 
    config 
FROM sessions
ORDER BY start_time, id`

	insertOdometrySQL = `
INSERT INTO odometry (
                      session_id,
                      timestamp_us,
                      frame,
                      x,
                      y,
                      z,
                      qw,
                      qx,
                      qy,
                      qz,
                      vx,
                      vy,
                      vz,
                      position_occluded,
                      orientation_occluded,
                      quality)
VALUES `

	odometryValuesPlaceholder = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	odometryColumns           = 16

	selectOdometrySQL = `
SELECT 
    timestamp_us,
    frame,
    x,
    y,
    z,
    qw,
    qx,
    qy,
    qz,
    vx,
    vy,
    vz,
    position_occluded,
    orientation_occluded,
    quality
FROM odometry
WHERE 
    session_id = ?
    AND timestamp_us BETWEEN ? AND ?
ORDER BY timestamp_us, id`

	countOdometrySQL = `
SELECT 
    COUNT(*)
FROM odometry
WHERE 
    session_id = ?`
)
