// Package tabular reads load and PV tables from CSV, XLSX and XLS files,
// either on disk or inside zip and rar archives. Only the first sheet of a
// workbook is read. Archive members are addressed as "archive.zip!member".
package tabular
