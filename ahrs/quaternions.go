package ahrs

import (
	"math"

	"github.com/westphae/quaternion"
)

// Identity is the orientation of a level vehicle pointing along its zero heading.
var Identity = quaternion.Quaternion{W: 1}

// FromEuler calculates the rotation quaternion corresponding to the roll, pitch
// and yaw angles, in degrees. The angles are applied as extrinsic rotations
// about x, then y, then z (equivalently q = qz*qy*qx).
func FromEuler(roll, pitch, yaw float64) quaternion.Quaternion {
	cr := math.Cos(roll * Deg / 2)
	sr := math.Sin(roll * Deg / 2)
	cp := math.Cos(pitch * Deg / 2)
	sp := math.Sin(pitch * Deg / 2)
	cy := math.Cos(yaw * Deg / 2)
	sy := math.Sin(yaw * Deg / 2)

	return quaternion.Quaternion{
		W: cr*cp*cy + sr*sp*sy,
		X: sr*cp*cy - cr*sp*sy,
		Y: cr*sp*cy + sr*cp*sy,
		Z: cr*cp*sy - sr*sp*cy,
	}
}

// ToEuler calculates the roll, pitch and yaw angles, in degrees, corresponding
// to the quaternion. It is the inverse of FromEuler; pitch is in [-90, 90] and
// roll and yaw are in [-180, 180].
func ToEuler(q quaternion.Quaternion) (roll, pitch, yaw float64) {
	q = Normalize(q)
	roll = math.Atan2(2*(q.W*q.X+q.Y*q.Z), 1-2*(q.X*q.X+q.Y*q.Y))
	sp := 2 * (q.W*q.Y - q.Z*q.X)
	if sp > 1 {
		sp = 1
	} else if sp < -1 {
		sp = -1
	}
	pitch = math.Asin(sp)
	yaw = math.Atan2(2*(q.W*q.Z+q.X*q.Y), 1-2*(q.Y*q.Y+q.Z*q.Z))
	return roll / Deg, pitch / Deg, yaw / Deg
}

// Norm returns the magnitude of the quaternion.
func Norm(q quaternion.Quaternion) float64 {
	return math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
}

// Normalize scales q to unit magnitude. A degenerate quaternion is replaced by Identity.
func Normalize(q quaternion.Quaternion) quaternion.Quaternion {
	qq := Norm(q)
	if qq < Small || math.IsNaN(qq) || math.IsInf(qq, 0) {
		return Identity
	}
	return quaternion.Quaternion{W: q.W / qq, X: q.X / qq, Y: q.Y / qq, Z: q.Z / qq}
}

// Compose returns the orientation reached by applying b in the body frame of a.
func Compose(a, b quaternion.Quaternion) quaternion.Quaternion {
	return Normalize(quaternion.Prod(a, b))
}

// Relative returns the rotation taking orientation from to orientation to,
// expressed in the body frame of from: from^-1 * to.
func Relative(from, to quaternion.Quaternion) quaternion.Quaternion {
	return Normalize(quaternion.Prod(Normalize(from).Conj(), Normalize(to)))
}

// Integrate advances q by body-frame rates g1, g2, g3 (°/s) held for dt seconds.
func Integrate(q quaternion.Quaternion, g1, g2, g3, dt float64) quaternion.Quaternion {
	return Compose(q, FromEuler(g1*dt, g2*dt, g3*dt))
}

// WrapYaw maps an angle in degrees into (-180, 180].
func WrapYaw(yaw float64) float64 {
	yaw = math.Mod(yaw+180, 360)
	if yaw <= 0 {
		yaw += 360
	}
	return yaw - 180
}
