package models

import "time"

// Detected is a single object detection surfaced by the (external)
// perception collaborator.
type Detected struct {
	ID         string        `json:"id"`
	Label      string        `json:"label"`
	Confidence float64       `json:"confidence"`
	BBox3D     BoundingBox3D `json:"bbox3d"`
	Spatial    *SpatialData  `json:"spatial_data,omitempty"`
}

// Observation is the external sensor-capture contract the core
// consumes. Camera/depth capture, GPS and heading are all produced by
// collaborators outside this module's scope.
type Observation struct {
	Timestamp         time.Time      `json:"timestamp"`
	CameraImage        []byte        `json:"camera_image,omitempty"`
	DepthMap           []byte        `json:"depth_map,omitempty"`
	DepthWidth         int           `json:"depth_width,omitempty"`
	DepthHeight        int           `json:"depth_height,omitempty"`
	DetectedObjects    []Detected    `json:"detected_objects"`
	Location           *GeoCoordinate `json:"location,omitempty"`
	DeviceOrientation  Orientation   `json:"device_orientation"`
}

// PrimaryLabel returns the highest-confidence detection label, or ""
// when there are no detections.
func (o *Observation) PrimaryLabel() string {
	best := -1.0
	label := ""
	for _, d := range o.DetectedObjects {
		if d.Confidence > best {
			best = d.Confidence
			label = d.Label
		}
	}
	return label
}

// PrimaryConfidence returns the confidence of the primary detection.
func (o *Observation) PrimaryConfidence() float64 {
	best := 0.0
	for _, d := range o.DetectedObjects {
		if d.Confidence > best {
			best = d.Confidence
		}
	}
	return best
}
