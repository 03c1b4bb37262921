package usecase

import (
	"fmt"
	"strings"

	"repair-agent/internal/domain"
)

// Outbound message construction. Plain text only; Flex/rich rendering is
// owned by the messaging surface, not the core.

func menuMessage() string {
	return strings.Join([]string{
		"เมนูหลัก",
		"• พิมพ์ \"แจ้งซ่อม\" เพื่อแจ้งปัญหาไฟฟ้าสาธารณะ",
		"• พิมพ์ \"ติดตามสถานะ\" เพื่อตรวจสอบคำขอของท่าน",
		"• พิมพ์ \"ยกเลิก\" ได้ทุกขั้นตอนเพื่อเริ่มใหม่",
	}, "\n")
}

func welcomeMessage() string {
	return "สวัสดีครับ ยินดีต้อนรับสู่ระบบแจ้งซ่อมไฟฟ้าสาธารณะ\n\n" + menuMessage()
}

func cancelAckMessage() string {
	return "ยกเลิกรายการเรียบร้อยแล้ว หากต้องการเริ่มใหม่ พิมพ์ \"แจ้งซ่อม\" หรือ \"ติดตามสถานะ\""
}

func genericFailureMessage() string {
	return "ขออภัย ระบบขัดข้องชั่วคราว กรุณาลองใหม่อีกครั้งภายหลัง"
}

func personalFormMessage(url string) string {
	return "กรุณากรอกข้อมูลส่วนตัวสำหรับการแจ้งซ่อมที่ลิงก์นี้\n" + url
}

func repairFormMessage(url string) string {
	return "ข้อมูลส่วนตัวเรียบร้อยแล้ว กรุณากรอกรายละเอียดการแจ้งซ่อมที่ลิงก์นี้\n" + url
}

func profileConfirmationMessage(name, phone, address string) string {
	return strings.Join([]string{
		"กรุณาตรวจสอบข้อมูลของท่าน",
		"ชื่อ-สกุล: " + name,
		"เบอร์โทรศัพท์: " + phone,
		"ที่อยู่: " + address,
		"",
		"พิมพ์ \"ยืนยัน\" หากถูกต้อง หรือ \"แก้ไข\" เพื่อกรอกใหม่",
	}, "\n")
}

func trackingMethodMessage() string {
	return strings.Join([]string{
		"ต้องการติดตามสถานะด้วยวิธีใด",
		"• พิมพ์ \"เลขที่คำขอ\" เพื่อค้นหาด้วยเลขที่คำขอ",
		"• พิมพ์ \"เบอร์โทรศัพท์\" เพื่อค้นหาด้วยเบอร์โทรศัพท์",
	}, "\n")
}

func askRequestIDMessage() string {
	return "กรุณาพิมพ์เลขที่คำขอของท่าน (เช่น RQ260829-A1B2C3)"
}

func askPhoneMessage() string {
	return "กรุณาพิมพ์เบอร์โทรศัพท์ที่ใช้แจ้งซ่อม (ตัวเลข 9-10 หลัก)"
}

func phoneRetryMessage() string {
	return "รูปแบบเบอร์โทรศัพท์ไม่ถูกต้อง กรุณาพิมพ์เฉพาะตัวเลข 9-10 หลัก"
}

func requestNotFoundMessage(key string) string {
	return fmt.Sprintf("ไม่พบข้อมูลคำขอแจ้งซ่อมสำหรับ \"%s\" กรุณาตรวจสอบและลองใหม่จากเมนูหลัก", key)
}

func requestStatusMessage(req domain.RepairRequest) string {
	lines := []string{
		"สถานะคำขอแจ้งซ่อม",
		"เลขที่คำขอ: " + req.ID,
		"ปัญหา: " + req.Problem,
		"สถานะ: " + string(req.Status),
	}
	if req.TechnicianNotes != "" {
		lines = append(lines, "หมายเหตุจากช่าง: "+req.TechnicianNotes)
	}
	return strings.Join(lines, "\n")
}

func requestListMessage(reqs []domain.RepairRequest) string {
	lines := []string{fmt.Sprintf("พบคำขอแจ้งซ่อม %d รายการ", len(reqs))}
	for _, r := range reqs {
		lines = append(lines, fmt.Sprintf("• %s — %s (%s)", r.ID, r.Problem, r.Status))
	}
	return strings.Join(lines, "\n")
}

func intakeReceiptMessage(requestID string) string {
	return strings.Join([]string{
		"รับเรื่องแจ้งซ่อมเรียบร้อยแล้ว",
		"เลขที่คำขอ: " + requestID,
		"ท่านสามารถติดตามสถานะได้โดยพิมพ์ \"ติดตามสถานะ\"",
	}, "\n")
}

func statusUpdateMessage(req domain.RepairRequest, newStatus domain.Status, notes string) string {
	lines := []string{
		"มีการอัปเดตสถานะคำขอแจ้งซ่อมของท่าน",
		"เลขที่คำขอ: " + req.ID,
		"สถานะใหม่: " + string(newStatus),
	}
	if notes != "" {
		lines = append(lines, "หมายเหตุ: "+notes)
	}
	return strings.Join(lines, "\n")
}

func opsStatusSummary(req domain.RepairRequest, newStatus domain.Status, notes string) string {
	s := fmt.Sprintf("🔧 อัปเดตสถานะ %s → %s (ผู้แจ้ง: %s)", req.ID, newStatus, req.ReporterName)
	if notes != "" {
		s += "\nหมายเหตุ: " + notes
	}
	return s
}

func opsNewRequestSummary(req domain.RepairRequest) string {
	return fmt.Sprintf("📋 คำขอแจ้งซ่อมใหม่ %s\nปัญหา: %s\nผู้แจ้ง: %s (%s)",
		req.ID, req.Problem, req.ReporterName, req.Phone)
}
