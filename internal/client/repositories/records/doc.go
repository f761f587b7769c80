// Package records stores the local shadows of foods, diary entries, weight
// samples and water samples. One generic repository serves every entity;
// each entity lives in its own table with the payload kept as JSON.
package records
