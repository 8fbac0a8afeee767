// Package export writes posts and zones to Excel workbooks using
// github.com/xuri/excelize/v2.
package export
