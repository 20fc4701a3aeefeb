package topics

import "time"

// Point is a position on the field in metres.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Robot is the visualized state of one robot.
type Robot struct {
	ID          int     `json:"id"`
	Team        string  `json:"team"`
	Position    Point   `json:"position"`
	Orientation float64 `json:"orientation"`
}

// Ball is the visualized state of the ball.
type Ball struct {
	Position Point `json:"position"`
	Velocity Point `json:"velocity"`
}

// World is the filtered world state published by the AI process.
type World struct {
	Timestamp time.Time `json:"timestamp"`
	Robots    []Robot   `json:"robots"`
	Ball      *Ball     `json:"ball,omitempty"`
}

// Detection is one raw vision detection.
type Detection struct {
	RobotID    int     `json:"robot_id"`
	Team       string  `json:"team"`
	Position   Point   `json:"position"`
	Confidence float64 `json:"confidence"`
}

// VisionFrame is a raw camera frame from SSL vision.
type VisionFrame struct {
	CameraID    int         `json:"camera_id"`
	FrameNumber uint64      `json:"frame_number"`
	CapturedAt  time.Time   `json:"captured_at"`
	Robots      []Detection `json:"robots"`
	Balls       []Point     `json:"balls"`
}

// Trajectory is the planned path of one robot.
type Trajectory struct {
	RobotID int     `json:"robot_id"`
	Points  []Point `json:"points"`
}

// Trajectories carries the planned paths of every controlled robot.
type Trajectories struct {
	Trajectories []Trajectory `json:"trajectories"`
}

// NodePerformance maps an AI node name to its publish period in ms.
type NodePerformance struct {
	PubPeriodMs map[string]float64 `json:"pub_period_ms"`
}

// SimCommand is the action requested from the simulator.
type SimCommand string

const (
	SimPause     SimCommand = "pause"
	SimResume    SimCommand = "resume"
	SimPlaceBall SimCommand = "place_ball"
	SimReset     SimCommand = "reset"
)

// SimControl is a command sent from the GUI to the simulator.
type SimControl struct {
	Command   SimCommand `json:"command" validate:"required,oneof=pause resume place_ball reset"`
	BallPoint *Point     `json:"ball_point,omitempty" validate:"required_if=Command place_ball"`
}

// LogRecord is one log line forwarded to the GUI.
type LogRecord struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Source  string    `json:"source"`
	Message string    `json:"message"`
}

// Metrics is a single telemetry sample.
type Metrics struct {
	Value float64 `json:"value"`
}
