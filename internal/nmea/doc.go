// Package nmea decodes the NMEA-0183 sentences used for positioning.
//
// It is deliberately lenient: a receiver feed is trusted, so checksums are not
// verified and short or malformed fields fall back to zero values instead of
// discarding the whole sentence.
// - RMC carries the date fragment used to timestamp fixes
// - GGA (or GLL) carries the position
// - GSA, GSV and VTG are decoded for diagnostics only
package nmea
