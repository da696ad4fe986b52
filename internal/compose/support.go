package compose

// supportSource is written to support.rs next to the mirrors.
const supportSource = `#![allow(dead_code, clippy::missing_safety_doc)]

use std::os::raw::c_char;

pub trait FFIConversion<T> {
    unsafe fn ffi_from(ffi: *mut Self) -> T;
    unsafe fn ffi_to(obj: T) -> *mut Self;
    unsafe fn destroy(ffi: *mut Self);
}

#[repr(C)]
#[derive(Clone, Copy)]
pub struct OwnedString {
    pub len: usize,
    pub data: *mut c_char,
}

impl OwnedString {
    pub fn new(s: String) -> Self {
        let bytes = s.into_bytes().into_boxed_slice();
        let len = bytes.len();
        OwnedString { len, data: Box::into_raw(bytes) as *mut c_char }
    }

    pub fn empty() -> Self {
        OwnedString { len: 0, data: std::ptr::null_mut() }
    }

    pub unsafe fn into_string(self) -> String {
        if self.data.is_null() {
            return String::new();
        }
        let bytes = Box::from_raw(std::ptr::slice_from_raw_parts_mut(self.data as *mut u8, self.len));
        match String::from_utf8(bytes.into_vec()) {
            Ok(s) => s,
            Err(e) => String::from_utf8_lossy(e.as_bytes()).into_owned(),
        }
    }

    pub unsafe fn to_owned_string(&self) -> String {
        if self.data.is_null() {
            return String::new();
        }
        let bytes = std::slice::from_raw_parts(self.data as *const u8, self.len);
        String::from_utf8_lossy(bytes).into_owned()
    }

    pub unsafe fn destroy(self) {
        drop(self.into_string());
    }
}

#[repr(C)]
#[derive(Clone, Copy, Default)]
pub struct Duration {
    pub secs: u64,
    pub nanos: u32,
}

impl Duration {
    pub fn from_std(d: std::time::Duration) -> Self {
        Duration { secs: d.as_secs(), nanos: d.subsec_nanos() }
    }

    pub fn to_std(self) -> std::time::Duration {
        std::time::Duration::new(self.secs, self.nanos)
    }
}

pub fn boxed<T>(obj: T) -> *mut T {
    Box::into_raw(Box::new(obj))
}

pub unsafe fn restore<T>(dst: *mut T, fresh: *mut T) {
    std::ptr::write(dst, *Box::from_raw(fresh));
}

pub unsafe fn unbox_any<T: ?Sized>(any: *mut T) {
    if !any.is_null() {
        drop(Box::from_raw(any));
    }
}

pub fn boxed_vec<T>(vec: Vec<T>) -> *mut T {
    Box::into_raw(vec.into_boxed_slice()) as *mut T
}

pub unsafe fn take_vec<T>(values: *mut T, count: usize) -> Vec<T> {
    if values.is_null() {
        return Vec::new();
    }
    Box::from_raw(std::ptr::slice_from_raw_parts_mut(values, count)).into_vec()
}

pub unsafe fn read_vec<T: Clone>(values: *const T, count: usize) -> Vec<T> {
    if values.is_null() || count == 0 {
        return Vec::new();
    }
    std::slice::from_raw_parts(values, count).to_vec()
}

pub fn to_array<T, const N: usize>(vec: Vec<T>) -> [T; N] {
    let len = vec.len();
    match vec.try_into() {
        Ok(array) => array,
        Err(_) => abort_with(&format!("expected {} elements, got {}", N, len)),
    }
}

pub fn abort_with(msg: &str) -> ! {
    eprintln!("ferment: {}", msg);
    std::process::abort()
}

pub fn invalid_tag(tag: u32) -> ! {
    abort_with(&format!("invalid enum tag {}", tag))
}

pub fn unsupported(method: &str) -> ! {
    abort_with(&format!("{} cannot be called through a foreign vtable", method))
}

#[no_mangle]
pub unsafe extern "C" fn ferment_string_new(data: *const c_char, len: usize) -> OwnedString {
    let bytes = read_vec(data as *const u8, len);
    OwnedString::new(String::from_utf8_lossy(&bytes).into_owned())
}

#[no_mangle]
pub unsafe extern "C" fn ferment_string_destroy(s: OwnedString) {
    s.destroy();
}
`
