package skeletal

// Joint indexes the 17 COCO keypoints.
type Joint int

// COCO keypoints in heatmap channel order.
const (
	Nose Joint = iota
	LeftEye
	RightEye
	LeftEar
	RightEar
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
	JointCount
)

var jointNames = [JointCount]string{
	"nose", "left_eye", "right_eye", "left_ear", "right_ear",
	"left_shoulder", "right_shoulder", "left_elbow", "right_elbow",
	"left_wrist", "right_wrist", "left_hip", "right_hip",
	"left_knee", "right_knee", "left_ankle", "right_ankle",
}

func (j Joint) String() string {
	if j < 0 || j >= JointCount {
		return "unknown"
	}
	return jointNames[j]
}

// MarshalText implements encoding.TextMarshaler.
func (j Joint) MarshalText() ([]byte, error) {
	return []byte(j.String()), nil
}

// Limb connects two joints.
type Limb struct {
	From, To Joint
}

var limbs = []Limb{
	{LeftAnkle, LeftKnee}, {LeftKnee, LeftHip}, {RightAnkle, RightKnee}, {RightKnee, RightHip},
	{LeftHip, RightHip}, {LeftShoulder, LeftHip}, {RightShoulder, RightHip},
	{LeftShoulder, RightShoulder}, {LeftShoulder, LeftElbow}, {RightShoulder, RightElbow},
	{LeftElbow, LeftWrist}, {RightElbow, RightWrist},
	{LeftEye, RightEye}, {Nose, LeftEye}, {Nose, RightEye}, {LeftEye, LeftEar}, {RightEye, RightEar},
	{LeftEar, LeftShoulder}, {RightEar, RightShoulder},
}

// Limbs returns the COCO skeleton connections.
func Limbs() []Limb {
	return append([]Limb(nil), limbs...)
}
