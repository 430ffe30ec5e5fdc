package semivar

import "math"

// WGS84 reference ellipsoid.
const (
	wgs84A = 6378.137 // equatorial radius, km
	wgs84F = 1.0 / 298.257223563
)

var wgs84E2 = wgs84F * (2 - wgs84F)

// acosFastThreshold is the cosine above which the accelerated arc-cosine
// approximation replaces math.Acos. Neighbor pairs are close together, so
// nearly every pair takes the fast path.
const acosFastThreshold = 0.97

func degToRad(deg float64) float64 { return deg * math.Pi / 180 }

// meridionalRadiusKm is the north-south radius of curvature at a latitude.
func meridionalRadiusKm(latDeg float64) float64 {
	s := math.Sin(degToRad(latDeg))
	w := 1 - wgs84E2*s*s
	return wgs84A * (1 - wgs84E2) / (w * math.Sqrt(w))
}

// primeVerticalRadiusKm is the east-west radius of curvature at a latitude.
func primeVerticalRadiusKm(latDeg float64) float64 {
	s := math.Sin(degToRad(latDeg))
	return wgs84A / math.Sqrt(1-wgs84E2*s*s)
}

// apparentRadiusKm is the local radius of curvature of the ellipsoid used to
// convert angular distance to physical distance: the geometric mean of the
// meridional and prime-vertical radii.
func apparentRadiusKm(latDeg float64) float64 {
	return math.Sqrt(meridionalRadiusKm(latDeg) * primeVerticalRadiusKm(latDeg))
}

// fastAcos approximates acos for x near 1 with the leading terms of the
// series about x=1. For x > 0.97 the relative error stays below 4e-6.
func fastAcos(x float64) float64 {
	t := 1 - x
	return math.Sqrt(2*t) * (1 + t/12 + 3*t*t/160)
}

// angularDistance returns the great-circle angle in radians between two
// points, by the spherical law of cosines. Above acosFastThreshold the
// accelerated approximation is used, otherwise the exact arc-cosine.
func angularDistance(lat1Deg, lon1Deg, lat2Deg, lon2Deg float64) float64 {
	p1 := degToRad(lat1Deg)
	p2 := degToRad(lat2Deg)
	c := math.Sin(p1)*math.Sin(p2) +
		math.Cos(p1)*math.Cos(p2)*math.Cos(degToRad(lon2Deg-lon1Deg))
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	if c > acosFastThreshold {
		return fastAcos(c)
	}
	return math.Acos(c)
}
