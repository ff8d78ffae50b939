// Package psgc resolves Philippine Standard Geographic Codes (region,
// province, city/municipality, barangay) stored in the psgc_areas table.
//
// Lookups are read-through cached with sturdyc; the table changes only when
// new reference data is loaded.
package psgc
